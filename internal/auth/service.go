// Package auth implements account signup, credential login, and opaque
// bearer-token sessions. Raw tokens are handed to the client once; only
// their SHA-256 digests are stored, so a database leak exposes no usable
// credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pathsynch/internal/core"
	"pathsynch/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// tokenPrefix marks issued tokens so leaked values are identifiable in
// secret scanners.
const tokenPrefix = "ps_"

// UserStore defines the data access methods the auth service needs for user
// operations. Satisfied by db.UserRepository.
type UserStore interface {
	Create(ctx context.Context, user *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

// SessionStore defines the data access methods the auth service needs for
// session operations. Satisfied by db.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *types.Session) error
	GetByDigest(ctx context.Context, digest string) (*types.Session, error)
	TouchLastSeen(ctx context.Context, digest string) error
	Delete(ctx context.Context, digest string) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashToken produces a hex-encoded SHA-256 digest of a raw token. The digest
// is what gets stored and searched; bcrypt would be unsearchable here.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Service implements signup, login, logout, and token resolution. It is the
// platform's core.Authenticator.
type Service struct {
	users      UserStore
	sessions   SessionStore
	hasher     PasswordHasher
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// ServiceConfig holds the dependencies for creating an auth Service.
type ServiceConfig struct {
	Users      UserStore
	Sessions   SessionStore
	Hasher     PasswordHasher // nil means production bcrypt
	SessionTTL time.Duration
	Now        func() time.Time // nil means time.Now
	Logger     *slog.Logger
}

// NewService creates a new auth Service.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{
		users:      cfg.Users,
		sessions:   cfg.Sessions,
		hasher:     hasher,
		sessionTTL: ttl,
		now:        now,
		logger:     logger,
	}
}

// Signup creates a new account on the starter plan and issues a session.
// Returns the created user and the raw session token.
func (s *Service) Signup(ctx context.Context, email, password, businessName string) (*types.User, string, error) {
	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		BusinessName: strings.TrimSpace(businessName),
		PasswordHash: hash,
		Plan:         types.PlanStarter,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID,
		"plan", user.Plan,
	)

	return user, token, nil
}

// Login verifies credentials and issues a session. Unknown emails and wrong
// passwords produce the same credentials error so the response never reveals
// whether an account exists.
func (s *Service) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, "", invalidCredentials()
		}
		return nil, "", err
	}

	if user.PasswordHash == "" {
		return nil, "", invalidCredentials()
	}
	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, "", invalidCredentials()
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"user_id", user.ID,
			"error", err,
		)
	}

	return user, token, nil
}

// Logout revokes the session behind the given raw token. Revoking an unknown
// or already-expired token succeeds silently.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, HashToken(token))
}

// ResolveToken resolves a raw bearer token to its Actor. Implements
// core.Authenticator.
func (s *Service) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	digest := HashToken(token)

	session, err := s.sessions.GetByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", nil)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			// The account vanished out from under a live session.
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", nil)
		}
		return nil, err
	}

	if err := s.sessions.TouchLastSeen(ctx, digest); err != nil {
		s.logger.WarnContext(ctx, "failed to touch session",
			"user_id", user.ID,
			"error", err,
		)
	}

	return &types.Actor{
		ID:    user.ID,
		Type:  types.ActorTypeUser,
		Email: user.Email,
		Plan:  user.Plan,
	}, nil
}

// issueSession generates a fresh random token, stores its digest, and
// returns the raw value.
func (s *Service) issueSession(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}
	token := tokenPrefix + hex.EncodeToString(raw)

	now := s.now()
	session := &types.Session{
		TokenDigest: HashToken(token),
		UserID:      userID,
		ExpiresAt:   now.Add(s.sessionTTL),
		CreatedAt:   now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

func invalidCredentials() error {
	return types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Compile-time interface compliance check.
var _ core.Authenticator = (*Service)(nil)
