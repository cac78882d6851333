package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/types"
)

func TestBillingEventRepository_MarkProcessed_FirstDelivery(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingEventRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	first, err := repo.MarkProcessed(context.Background(), "evt_123", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, first)

	require.Len(t, captured, 2)
	assert.Equal(t, "evt_123", captured[0])
	assert.Equal(t, "invoice.paid", captured[1])
}

func TestBillingEventRepository_MarkProcessed_DuplicateDelivery(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingEventRepository(db)

	// ON CONFLICT DO NOTHING inserts zero rows for a replayed event id.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	first, err := repo.MarkProcessed(context.Background(), "evt_123", "invoice.paid")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestBillingEventRepository_MarkProcessed_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingEventRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.MarkProcessed(context.Background(), "evt_123", "invoice.paid")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestBillingEventRepository_DeleteOlderThan(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingEventRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("DELETE 17"), nil)

	cutoff := time.Now().AddDate(0, 0, -90)
	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	require.Len(t, captured, 1)
	assert.Equal(t, cutoff, captured[0])
}
