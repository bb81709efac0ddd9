package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsConversion(t *testing.T) {
	tests := []struct {
		name  string
		value string
		cents int64
	}{
		{name: "whole dollars", value: "12", cents: 1200},
		{name: "two places", value: "4.99", cents: 499},
		{name: "rounds half away from zero", value: "0.125", cents: 13},
		{name: "zero", value: "0", cents: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toCents(decimal.RequireFromString(tt.value))
			assert.Equal(t, tt.cents, got)
		})
	}

	assert.True(t, decimal.RequireFromString("4.99").Equal(fromCents(499)))
}

func TestRetry_RetriesSerializationFailure(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0, 0}, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterDelays(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0}, func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_DoesNotRetryStockConflict(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0, 0}, func() error {
		calls++
		return fmt.Errorf("%w: A", ErrStockConflict)
	})

	require.True(t, errors.Is(err, ErrStockConflict))
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, []time.Duration{time.Hour}, func() error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSaleAttempt_LostCommitAckIsSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0, 0}, saleAttempt(func() error {
		calls++
		if calls == 1 {
			return errors.New("commit tx: read: connection reset by peer")
		}
		return fmt.Errorf("%w: sale-1", ErrSaleExists)
	}))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSaleAttempt_DuplicateOnFirstAttemptFails(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0, 0}, saleAttempt(func() error {
		calls++
		return fmt.Errorf("%w: sale-1", ErrSaleExists)
	}))

	require.ErrorIs(t, err, ErrSaleExists)
	assert.Equal(t, 1, calls)
}

func TestSaleAttempt_StockConflictAfterRetryStillFails(t *testing.T) {
	calls := 0
	err := retry(context.Background(), []time.Duration{0, 0}, saleAttempt(func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return fmt.Errorf("%w: bk-1", ErrStockConflict)
	}))

	require.ErrorIs(t, err, ErrStockConflict)
	assert.Equal(t, 2, calls)
}
