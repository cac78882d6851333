package handlers

import (
	"net/http"
	"strconv"

	"pathsynch/internal/types"
)

// actorID resolves the authenticated user from the request context. The
// auth middleware populates the actor for every non-public route, so an
// empty result means the request slipped past it somehow; callers treat
// that as unauthenticated rather than panicking.
func actorID(r *http.Request) (string, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		return "", types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	return actor.ID, nil
}

// queryLimit parses the optional ?limit= parameter. Zero means "let the
// repository apply its default".
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 100 {
		return 0, types.NewAppError(types.ErrCodeValidationQueryParam,
			"limit must be a number between 1 and 100", err)
	}
	return limit, nil
}

// checkOwnership rejects access to another user's resource. Cross-user
// reads are a 403, not a 404: the id space is unguessable UUIDs, so the
// distinction leaks nothing.
func checkOwnership(resourceUserID, userID string) error {
	if resourceUserID != userID {
		return types.NewAppError(types.ErrCodePermissionOwnership, "You do not have access to this resource", nil)
	}
	return nil
}
