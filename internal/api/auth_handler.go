package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/config"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/service"
	"github.com/phrazzld/pm-api/internal/service/auth"
)

// AuthHandler handles registration, login and the current-user endpoint.
type AuthHandler struct {
	users         UserService
	jwtService    auth.JWTService
	tokenLifetime time.Duration
	timeFunc      func() time.Time
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users UserService, jwtService auth.JWTService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		users:         users,
		jwtService:    jwtService,
		tokenLifetime: time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		timeFunc:      time.Now,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Me handles GET /api/users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	token, err := h.jwtService.GenerateToken(r.Context(), user.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to generate token",
			slog.String("user_id", user.ID.String()))
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to generate authentication token", err)
		return
	}

	shared.RespondWithJSON(w, r, status, AuthResponse{
		UserID:      user.ID,
		AccessToken: token,
		ExpiresAt:   h.timeFunc().Add(h.tokenLifetime).UTC(),
	})
}
