package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/types"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, user *types.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Create(ctx context.Context, session *types.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionStore) GetByDigest(ctx context.Context, digest string) (*types.Session, error) {
	args := m.Called(ctx, digest)
	if s := args.Get(0); s != nil {
		return s.(*types.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionStore) TouchLastSeen(ctx context.Context, digest string) error {
	return m.Called(ctx, digest).Error(0)
}

func (m *mockSessionStore) Delete(ctx context.Context, digest string) error {
	return m.Called(ctx, digest).Error(0)
}

// fakeHasher avoids paying bcrypt cost in unit tests.
type fakeHasher struct{}

func (fakeHasher) CompareHashAndPassword(hashedPassword, password string) error {
	if hashedPassword != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func (fakeHasher) GenerateFromPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

var authNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService(users *mockUserStore, sessions *mockSessionStore) *Service {
	return NewService(ServiceConfig{
		Users:      users,
		Sessions:   sessions,
		Hasher:     fakeHasher{},
		SessionTTL: 720 * time.Hour,
		Now:        func() time.Time { return authNow },
	})
}

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestSignup_CreatesStarterUserAndSession(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	var createdUser *types.User
	users.On("Create", mock.Anything, mock.AnythingOfType("*types.User")).
		Run(func(args mock.Arguments) {
			createdUser = args.Get(1).(*types.User)
		}).
		Return(nil)

	var createdSession *types.Session
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*types.Session")).
		Run(func(args mock.Arguments) {
			createdSession = args.Get(1).(*types.Session)
		}).
		Return(nil)

	user, token, err := svc.Signup(context.Background(), "  Owner@Example.COM ", "s3cret-pw", " Acme Plumbing ")
	require.NoError(t, err)

	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Acme Plumbing", user.BusinessName)
	assert.Equal(t, types.PlanStarter, user.Plan)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "hashed:s3cret-pw", createdUser.PasswordHash)

	require.True(t, strings.HasPrefix(token, "ps_"), "token must carry the ps_ prefix")
	assert.Equal(t, HashToken(token), createdSession.TokenDigest)
	assert.Equal(t, authNow.Add(720*time.Hour), createdSession.ExpiresAt)
	assert.NotContains(t, createdSession.TokenDigest, token, "raw token must not be stored")
}

func TestSignup_DuplicateEmailPropagatesConflict(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	users.On("Create", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil))

	_, _, err := svc.Signup(context.Background(), "dup@example.com", "pw", "Dup LLC")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictEmail, appErr.Code)

	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	users.On("GetByEmail", mock.Anything, "owner@example.com").
		Return(&types.User{
			ID:           "user_1",
			Email:        "owner@example.com",
			PasswordHash: "hashed:correct-pw",
			Plan:         types.PlanGrowth,
		}, nil)
	sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateLastLogin", mock.Anything, "user_1").Return(nil)

	user, token, err := svc.Login(context.Background(), "Owner@Example.com", "correct-pw")
	require.NoError(t, err)
	assert.Equal(t, "user_1", user.ID)
	assert.True(t, strings.HasPrefix(token, "ps_"))

	users.AssertCalled(t, "UpdateLastLogin", mock.Anything, "user_1")
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	users.On("GetByEmail", mock.Anything, "known@example.com").
		Return(&types.User{ID: "user_1", PasswordHash: "hashed:right"}, nil)
	users.On("GetByEmail", mock.Anything, "unknown@example.com").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil))

	_, _, errWrongPw := svc.Login(context.Background(), "known@example.com", "wrong")
	_, _, errNoUser := svc.Login(context.Background(), "unknown@example.com", "whatever")

	require.Error(t, errWrongPw)
	require.Error(t, errNoUser)
	// Identical message and code, so the response cannot be used to probe
	// which accounts exist.
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())

	var appErr *types.AppError
	require.ErrorAs(t, errWrongPw, &appErr)
	assert.Equal(t, types.ErrCodeAuthInvalidCreds, appErr.Code)

	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLogin_LastLoginFailureDoesNotFailLogin(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	users.On("GetByEmail", mock.Anything, "owner@example.com").
		Return(&types.User{ID: "user_1", PasswordHash: "hashed:pw"}, nil)
	sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("UpdateLastLogin", mock.Anything, "user_1").
		Return(types.NewAppError(types.ErrCodeInternalDB, "db down", nil))

	_, token, err := svc.Login(context.Background(), "owner@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

// ---------------------------------------------------------------------------
// ResolveToken
// ---------------------------------------------------------------------------

func TestResolveToken_Success(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	token := "ps_rawtokenvalue"
	digest := HashToken(token)

	sessions.On("GetByDigest", mock.Anything, digest).
		Return(&types.Session{TokenDigest: digest, UserID: "user_1"}, nil)
	users.On("GetByID", mock.Anything, "user_1").
		Return(&types.User{
			ID:    "user_1",
			Email: "owner@example.com",
			Plan:  types.PlanScale,
		}, nil)
	sessions.On("TouchLastSeen", mock.Anything, digest).Return(nil)

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user_1", actor.ID)
	assert.Equal(t, types.ActorTypeUser, actor.Type)
	assert.Equal(t, types.PlanScale, actor.Plan)
	assert.Equal(t, "owner@example.com", actor.Email)
}

func TestResolveToken_UnknownOrExpiredToken(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	sessions.On("GetByDigest", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := svc.ResolveToken(context.Background(), "ps_stale")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestResolveToken_OrphanedSessionIsInvalid(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	token := "ps_orphan"
	sessions.On("GetByDigest", mock.Anything, HashToken(token)).
		Return(&types.Session{TokenDigest: HashToken(token), UserID: "gone"}, nil)
	users.On("GetByID", mock.Anything, "gone").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil))

	_, err := svc.ResolveToken(context.Background(), token)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestResolveToken_TouchFailureIsTolerated(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	token := "ps_touchy"
	digest := HashToken(token)
	sessions.On("GetByDigest", mock.Anything, digest).
		Return(&types.Session{TokenDigest: digest, UserID: "user_1"}, nil)
	users.On("GetByID", mock.Anything, "user_1").
		Return(&types.User{ID: "user_1", Plan: types.PlanStarter}, nil)
	sessions.On("TouchLastSeen", mock.Anything, digest).
		Return(types.NewAppError(types.ErrCodeInternalDB, "db down", nil))

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", actor.ID)
}

// ---------------------------------------------------------------------------
// Logout / HashToken
// ---------------------------------------------------------------------------

func TestLogout_DeletesByDigest(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions)

	token := "ps_bye"
	sessions.On("Delete", mock.Anything, HashToken(token)).Return(nil)

	require.NoError(t, svc.Logout(context.Background(), token))
	sessions.AssertExpectations(t)
}

func TestHashToken_DeterministicAndHex(t *testing.T) {
	a := HashToken("ps_sample")
	b := HashToken("ps_sample")
	c := HashToken("ps_other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
