package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/service/auth"
	"github.com/phrazzld/pm-api/internal/store"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email or
// a wrong password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterInput holds the fields accepted at registration.
type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// UserService registers and authenticates users.
type UserService struct {
	users    store.UserStore
	verifier auth.PasswordVerifier
	logger   *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users store.UserStore, verifier auth.PasswordVerifier, logger *slog.Logger) (*UserService, error) {
	if users == nil {
		return nil, errors.New("user store cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("password verifier cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:    users,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "user_service")),
	}, nil
}

// Register creates a USER account. A taken email yields ErrConflict.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	user, err := domain.NewUser(in.Email, in.Name, in.Password)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, NewServiceError("register_user", "failed to create user", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("user registered",
		slog.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate returns the user whose email and password match.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = s.verifier.Compare("", password)
			log.Debug("login attempt for unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, NewServiceError("authenticate", "failed to read user", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			log.Debug("login attempt with wrong password", slog.String("user_id", user.ID.String()))
		} else {
			log.Error("stored password hash is unusable",
				slog.String("user_id", user.ID.String()),
				slog.String("error", err.Error()))
		}
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_user", "failed to read user", err)
	}
	return user, nil
}
