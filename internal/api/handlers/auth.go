// Package handlers contains the HTTP handler implementations for the
// PathSynch API. Each handler declares narrow interfaces for the services it
// uses; the entry point wires the concrete repositories and clients in.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pathsynch/internal/core"
	"pathsynch/internal/types"
)

// --- Service Interfaces ---

// AuthService is the slice of the auth service the handler needs.
type AuthService interface {
	Signup(ctx context.Context, email, password, businessName string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	Logout(ctx context.Context, token string) error
}

// --- Request/Response Models ---

// SignupRequest is the body for POST /v1/auth/signup.
type SignupRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=128"`
	BusinessName string `json:"businessName" validate:"required,max=200"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the user beside their freshly minted token. The
// token appears here and nowhere else; only its digest is stored.
type AuthResponse struct {
	User  *types.User `json:"user"`
	Token string      `json:"token"`
}

// --- Handler ---

// AuthHandler serves signup, login, and logout.
type AuthHandler struct {
	auth      AuthService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth AuthService, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{auth: auth, validator: v, logger: l}
}

// RegisterRoutes mounts the auth endpoints. Signup and login are public;
// logout requires the token it revokes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
}

// Signup handles POST /v1/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.auth.Signup(r.Context(), req.Email, req.Password, req.BusinessName)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user signed up",
		"user_id", user.ID,
	)
	core.Created(w, r, AuthResponse{User: user, Token: token})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.OK(w, r, AuthResponse{User: user, Token: token})
}

// Logout handles POST /v1/auth/logout. Revokes the presented token; a token
// that is already gone still logs out cleanly.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		core.Error(w, r, err)
		return
	}
	core.OKMessage(w, r, nil, "logged out")
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) {
		return ""
	}
	return header[len(prefix):]
}
