package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/config"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/mocks"
	"github.com/phrazzld/pm-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthConfig = config.AuthConfig{TokenLifetimeMinutes: 60}

func TestRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		registerFn func(ctx context.Context, in service.RegisterInput) (*domain.User, error)
		wantStatus int
		wantToken  bool
	}{
		{
			name:       "valid registration",
			body:       `{"email":"test@example.com","name":"Test","password":"password1234567"}`,
			wantStatus: http.StatusCreated,
			wantToken:  true,
		},
		{
			name:       "invalid email",
			body:       `{"email":"invalid-email","name":"Test","password":"password1234567"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "password too short",
			body:       `{"email":"test@example.com","name":"Test","password":"short"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing name",
			body:       `{"email":"test@example.com","password":"password1234567"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "email taken",
			body: `{"email":"test@example.com","name":"Test","password":"password1234567"}`,
			registerFn: func(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
				return nil, service.ErrConflict
			},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewAuthHandler(&fakeUsers{RegisterFn: tt.registerFn},
				&mocks.MockJWTService{Token: "test-token"}, testAuthConfig)

			rr := httptest.NewRecorder()
			handler.Register(rr, newRequest(http.MethodPost, "/api/auth/register", tt.body, uuid.Nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantToken {
				var resp AuthResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, "test-token", resp.AccessToken)
				assert.NotEqual(t, uuid.Nil, resp.UserID)
				assert.False(t, resp.ExpiresAt.IsZero())
			}
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	users := &fakeUsers{
		AuthenticateFn: func(ctx context.Context, email, password string) (*domain.User, error) {
			if password != "correct-password" {
				return nil, service.ErrInvalidCredentials
			}
			return &domain.User{ID: userID, Email: email}, nil
		},
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	handler := NewAuthHandler(users, &mocks.MockJWTService{Token: "login-token"}, testAuthConfig)
	handler.timeFunc = func() time.Time { return now }

	t.Run("success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.Login(rr, newRequest(http.MethodPost, "/api/auth/login",
			`{"email":"a@example.com","password":"correct-password"}`, uuid.Nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp AuthResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, userID, resp.UserID)
		assert.Equal(t, "login-token", resp.AccessToken)
		assert.Equal(t, now.Add(time.Hour), resp.ExpiresAt)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.Login(rr, newRequest(http.MethodPost, "/api/auth/login",
			`{"email":"a@example.com","password":"nope"}`, uuid.Nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		var resp shared.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "Invalid credentials", resp.Error)
	})

	t.Run("token generation fails", func(t *testing.T) {
		failing := NewAuthHandler(users, &mocks.MockJWTService{Err: errors.New("signing failed")}, testAuthConfig)
		rr := httptest.NewRecorder()
		failing.Login(rr, newRequest(http.MethodPost, "/api/auth/login",
			`{"email":"a@example.com","password":"correct-password"}`, uuid.Nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "signing failed")
	})
}

func TestMe(t *testing.T) {
	t.Parallel()

	handler := NewAuthHandler(&fakeUsers{}, &mocks.MockJWTService{}, testAuthConfig)

	userID := uuid.New()
	rr := httptest.NewRecorder()
	handler.Me(rr, newRequest(http.MethodGet, "/api/users/me", "", userID))
	require.Equal(t, http.StatusOK, rr.Code)

	var user domain.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, userID, user.ID)

	rr = httptest.NewRecorder()
	handler.Me(rr, newRequest(http.MethodGet, "/api/users/me", "", uuid.Nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
