package core

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"pathsynch/internal/types"
)

// authPublicPaths lists URL paths exempt from bearer authentication. The
// Stripe webhook authenticates by signature instead; signup and login mint
// the tokens in the first place.
var authPublicPaths = map[string]bool{
	"/health":             true,
	"/health/ready":       true,
	"/v1/auth/signup":     true,
	"/v1/auth/login":      true,
	"/v1/webhooks/stripe": true,
}

// AuthMiddleware resolves the Authorization bearer token to an Actor and
// injects it into the request context.
//
//  1. Public paths pass through untouched.
//  2. A missing or malformed header yields 401 auth_token_missing.
//  3. Authenticator.ResolveToken failures yield 401 auth_token_invalid.
//
// A nil Authenticator (unit tests of individual handlers) passes through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses "Bearer <token>" (scheme case-insensitive per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError maps Authenticator failures to 401 responses without
// leaking internals.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code.HTTPStatus() == http.StatusUnauthorized {
		s.Logger.Warn("authentication failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(appErr.Code)),
		)
		s.writeAuthError(w, r, appErr.Code, appErr.Message)
		return
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 failure envelope with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIResponse{
		Success:   false,
		Error:     string(code),
		Message:   message,
		RequestID: types.GetRequestID(r.Context()),
	})
}

// RequireAdmin guards the admin surface. A request passes when either the
// X-Admin-Key header matches the configured admin key (compared in constant
// time) or the resolved Actor is an admin. Everything else gets 403.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Admin-Key"); key != "" {
			configured := s.Config.Security.AdminAPIKey.Unmask()
			if configured != "" && subtle.ConstantTimeCompare([]byte(key), []byte(configured)) == 1 {
				ctx := types.WithActor(r.Context(), types.Actor{
					ID:     "admin",
					Type:   types.ActorTypeAdmin,
					Source: "admin_key",
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			s.Logger.Warn("admin key rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeForbidden(w, r, types.ErrCodePermissionAdminKey, "Invalid admin key")
			return
		}

		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthRequired, "Authentication required")
			return
		}
		if actor.Type != types.ActorTypeAdmin {
			s.writeForbidden(w, r, types.ErrCodePermissionDenied, "Admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests whose context carries no Actor. Handlers
// behind this middleware can assume GetActor succeeds.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthRequired, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeForbidden writes a 403 failure envelope.
func (s *Server) writeForbidden(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusForbidden, APIResponse{
		Success:   false,
		Error:     string(code),
		Message:   message,
		RequestID: types.GetRequestID(r.Context()),
	})
}
