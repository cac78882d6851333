package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// SessionRepository provides data access for the sessions table. Rows are
// keyed by the SHA-256 digest of the raw bearer token; the plaintext never
// touches the database.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token_digest, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.TokenDigest,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByDigest retrieves a live session by token digest. Expired sessions are
// filtered in SQL, so a stale token looks identical to an unknown one:
// (nil, nil). Sweeping the dead rows belongs to maintenance, not this read.
func (r *SessionRepository) GetByDigest(ctx context.Context, digest string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT token_digest, user_id, expires_at, created_at, last_seen_at
		 FROM sessions
		 WHERE token_digest = $1 AND expires_at > NOW()`,
		digest,
	).Scan(
		&s.TokenDigest,
		&s.UserID,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return &s, nil
}

// TouchLastSeen updates the session's last activity timestamp. Best-effort:
// callers log failures but never fail the request over it.
func (r *SessionRepository) TouchLastSeen(ctx context.Context, digest string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_seen_at = NOW() WHERE token_digest = $1`,
		digest,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to touch session", err)
	}
	return nil
}

// Delete removes a session by digest (logout). Deleting an unknown digest is
// not an error.
func (r *SessionRepository) Delete(ctx context.Context, digest string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE token_digest = $1`,
		digest,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before the cutoff and returns
// how many rows were deleted. Called by the maintenance sweep.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
