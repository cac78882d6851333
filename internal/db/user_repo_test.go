package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/types"
)

func TestScanPlan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.PlanTier
	}{
		{"json string", `"growth"`, types.PlanGrowth},
		{"json string starter", `"starter"`, types.PlanStarter},
		{"legacy object", `{"tier": "scale"}`, types.PlanScale},
		{"legacy object enterprise", `{"tier":"enterprise"}`, types.PlanEnterprise},
		{"legacy object unknown tier", `{"tier": "platinum"}`, types.PlanStarter},
		{"legacy object empty tier", `{"tier": ""}`, types.PlanStarter},
		{"bare word from migrated text column", `growth`, types.PlanGrowth},
		{"unknown plan name", `"premium"`, types.PlanStarter},
		{"empty", ``, types.PlanStarter},
		{"null", `null`, types.PlanStarter},
		{"garbage", `{{{`, types.PlanStarter},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scanPlan([]byte(tc.raw)))
		})
	}

	assert.Equal(t, types.PlanStarter, scanPlan(nil))
}

func TestPlanValue(t *testing.T) {
	assert.Equal(t, []byte(`"growth"`), planValue(types.PlanGrowth))
	assert.Equal(t, []byte(`"starter"`), planValue(types.PlanStarter))
}

func TestUserRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	user := &types.User{
		ID:           "user_1",
		Email:        "owner@example.com",
		BusinessName: "Riverside Bakery",
		PasswordHash: "$2a$12$hash",
		Plan:         types.PlanStarter,
	}

	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	db.AssertExpectations(t)

	// The plan is written as a plain JSON string, never the legacy shape.
	require.Len(t, captured, 6)
	assert.Equal(t, []byte(`"starter"`), captured[4])
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &types.User{ID: "user_1", Email: "dup@example.com"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictEmail, appErr.Code)
}

func TestUserRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_1"
			*dest[1].(*string) = "owner@example.com"
			*dest[2].(*string) = "Riverside Bakery"
			hash := "$2a$12$hash"
			*dest[3].(**string) = &hash
			*dest[4].(*[]byte) = []byte(`{"tier": "growth"}`)
			status := "active"
			*dest[5].(**string) = &status
			cust := "cus_123"
			*dest[6].(**string) = &cust
			// dest[7] stripe_subscription_id stays NULL
			// dest[8], dest[9] period bounds stay NULL
			*dest[10].(*time.Time) = now
			*dest[11].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	user, err := repo.GetByID(context.Background(), "user_1")
	require.NoError(t, err)

	assert.Equal(t, "user_1", user.ID)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Riverside Bakery", user.BusinessName)
	// Legacy plan shape is normalized at the repository boundary.
	assert.Equal(t, types.PlanGrowth, user.Plan)
	assert.Equal(t, types.SubStatusActive, user.SubscriptionStatus)
	assert.Equal(t, "cus_123", user.StripeCustomerID)
	assert.Empty(t, user.StripeSubscriptionID)
	assert.Nil(t, user.LastLoginAt)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "user_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_GetByStripeCustomerID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByStripeCustomerID(context.Background(), "cus_unknown")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_ApplyBillingState(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	err := repo.ApplyBillingState(
		context.Background(),
		"user_1",
		types.PlanScale,
		types.SubStatusActive,
		"sub_123",
		&start,
		&end,
	)
	require.NoError(t, err)

	require.Len(t, captured, 6)
	assert.Equal(t, []byte(`"scale"`), captured[0])
	assert.Equal(t, "active", captured[1])
}

func TestUserRepository_ApplyBillingState_UserNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.ApplyBillingState(context.Background(), "user_gone", types.PlanGrowth, types.SubStatusActive, "", nil, nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_SetPlan(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetPlan(context.Background(), "user_1", types.PlanEnterprise)
	require.NoError(t, err)

	require.Len(t, captured, 2)
	assert.Equal(t, []byte(`"enterprise"`), captured[0])
	assert.Equal(t, "user_1", captured[1])
}

func TestUserRepository_List_NormalizesLegacyPlans(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	rows := newMockRows([][]any{
		{"user_1", "a@example.com", "Biz A", nil, `"growth"`, nil, nil, nil, nil, nil, now, now, nil},
		{"user_2", "b@example.com", "Biz B", nil, `{"tier": "scale"}`, nil, nil, nil, nil, nil, now.Add(-time.Hour), now, nil},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	users, pageInfo, err := repo.List(context.Background(), ListUsersParams{Limit: 20})
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, types.PlanGrowth, users[0].Plan)
	assert.Equal(t, types.PlanScale, users[1].Plan)
	assert.False(t, pageInfo.HasMore)
}

func TestUserRepository_List_Pagination(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Three rows returned against a limit of two: HasMore with a cursor at
	// the second row's created_at.
	rows := newMockRows([][]any{
		{"user_1", "a@example.com", "Biz A", nil, `"starter"`, nil, nil, nil, nil, nil, base, base, nil},
		{"user_2", "b@example.com", "Biz B", nil, `"starter"`, nil, nil, nil, nil, nil, base.Add(-time.Hour), base, nil},
		{"user_3", "c@example.com", "Biz C", nil, `"starter"`, nil, nil, nil, nil, nil, base.Add(-2 * time.Hour), base, nil},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	users, pageInfo, err := repo.List(context.Background(), ListUsersParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, pageInfo.HasMore)
	assert.Equal(t, base.Add(-time.Hour).Format(time.RFC3339Nano), pageInfo.NextCursor)
}

func TestUserRepository_List_InvalidCursor(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	_, _, err := repo.List(context.Background(), ListUsersParams{Cursor: "not-a-timestamp"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationQueryParam, appErr.Code)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}
