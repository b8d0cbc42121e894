package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user, err := NewUser(" Ada@Example.com ", "Ada", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, RoleUser, user.Role)

	tests := []struct {
		name     string
		email    string
		userName string
		password string
		wantErr  error
	}{
		{"empty email", "", "Ada", "correct-horse-battery", ErrEmptyEmail},
		{"bad email", "not-an-email", "Ada", "correct-horse-battery", ErrInvalidEmail},
		{"empty name", "ada@example.com", "", "correct-horse-battery", ErrEmptyUserName},
		{"short password", "ada@example.com", "Ada", "short", ErrPasswordTooShort},
		{"long password", "ada@example.com", "Ada", strings.Repeat("p", 73), ErrPasswordTooLong},
		{"no password", "ada@example.com", "Ada", "", ErrEmptyPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.email, tt.userName, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUser_ValidateStored(t *testing.T) {
	user, err := NewUser("ada@example.com", "Ada", "correct-horse-battery")
	require.NoError(t, err)

	user.Password = ""
	user.HashedPassword = "$2a$10$hash"
	assert.NoError(t, user.Validate())
}
