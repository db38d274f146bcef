package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"unrelated", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2,
	}

	require.Equal(t, time.Duration(0), calculateBackoff(1, cfg))

	backoff := calculateBackoff(2, cfg)
	require.Greater(t, backoff, time.Duration(0))
	require.LessOrEqual(t, backoff, cfg.MaxBackoff+cfg.MaxBackoff/4)

	// High attempt numbers must stay capped near MaxBackoff (with jitter).
	capped := calculateBackoff(20, cfg)
	require.LessOrEqual(t, capped, cfg.MaxBackoff+cfg.MaxBackoff/4)
}

func TestRetryWithBackoff_SucceedsAfterRetries(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, "test_op", func() error {
		attempts++
		if attempts < 2 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_NonRetryableFailsImmediately(t *testing.T) {
	cfg := DefaultRetryConfig()
	attempts := 0

	err := retryWithBackoff(context.Background(), cfg, "test_op", func() error {
		attempts++
		return errors.New("invalid argument")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, cfg, "test_op", func() error {
		return errors.New("timeout")
	})
	require.Error(t, err)
}

func TestIsTooManyResultsError(t *testing.T) {
	ok, data := IsTooManyResultsError(nil)
	require.False(t, ok)
	require.Empty(t, data)
}

func TestParseSuggestedBlockRange(t *testing.T) {
	from, to, ok := ParseSuggestedBlockRange(
		"Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].")
	require.True(t, ok)
	require.EqualValues(t, 0x7dfd25, from)
	require.EqualValues(t, 0x7e0fcc, to)

	_, _, ok = ParseSuggestedBlockRange("no range here")
	require.False(t, ok)
}
