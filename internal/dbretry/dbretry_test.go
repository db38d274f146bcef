package dbretry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/dbretry"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"insufficient resources class", &pgconn.PgError{Code: "53300"}, true},
		{"operator intervention class", &pgconn.PgError{Code: "57014"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain connection refused", errors.New("dial tcp: connection refused"), true},
		{"plain unrelated", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, dbretry.Retryable(tt.err))
		})
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	cfg := &dbretry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFraction: 0.5}
	attempts := 0

	err := dbretry.Do(context.Background(), cfg, "test_op", func() error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	cfg := dbretry.DefaultConfig()
	attempts := 0

	err := dbretry.Do(context.Background(), cfg, "test_op", func() error {
		attempts++
		return &pgconn.PgError{Code: "23505"}
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cfg := &dbretry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, JitterFraction: 0.5}
	attempts := 0

	err := dbretry.Do(context.Background(), cfg, "test_op", func() error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})

	require.Error(t, err)
	require.Equal(t, 2, attempts)
}
