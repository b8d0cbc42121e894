package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// MockUserStore implements store.UserStore in memory.
type MockUserStore struct {
	data *memoryData

	// Function fields for customizable behavior
	CreateFn     func(ctx context.Context, user *domain.User) error
	GetByEmailFn func(ctx context.Context, email string) (*domain.User, error)
	GetByIDFn    func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

var _ store.UserStore = (*MockUserStore)(nil)

// NewMockUserStore creates a user store with its own empty dataset.
func NewMockUserStore() *MockUserStore {
	return NewStores().Users
}

// Create implements store.UserStore. Passwords are hashed with the
// minimum bcrypt cost.
func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}
	if err := user.Validate(); err != nil {
		return err
	}

	if user.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.HashedPassword = string(hash)
		user.Password = ""
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	for _, existing := range m.data.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return store.ErrEmailExists
		}
	}
	m.data.users[user.ID] = *user
	return nil
}

// GetByEmail implements store.UserStore.
func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFn != nil {
		return m.GetByEmailFn(ctx, email)
	}

	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	for _, u := range m.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// GetByID implements store.UserStore.
func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	u, ok := m.data.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

// WithTx implements store.UserStore.
func (m *MockUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}

// AddUser stores a user directly, bypassing validation and hashing.
func (m *MockUserStore) AddUser(user *domain.User) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	m.data.users[user.ID] = *user
}
