// Package dbretry retries transient Postgres errors (spec §4.6/§7: "serialization
// failure, deadlock, connection classes 08/53/57") with the same
// exponential-backoff-with-jitter shape used for RPC calls.
package dbretry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config bounds the retry policy. Defaults match spec §7's
// "2^n * 1000ms * (0.5 + rand), up to 3 times".
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	JitterFraction float64
}

// DefaultConfig matches spec §7's stated database retry policy exactly.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    4,
		BaseDelay:      1 * time.Second,
		JitterFraction: 0.5,
	}
}

// retryableSQLStateClasses are the Postgres error-class prefixes spec §7
// names as transient: connection exception, insufficient resources,
// operator intervention.
var retryableSQLStateClasses = []string{"08", "53", "57"}

// retryableSQLStates are specific codes outside those classes that are
// still transient: serialization failure and deadlock detected.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// Retryable reports whether err is a transient Postgres error worth
// retrying at the connection/transaction level.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if retryableSQLStates[pgErr.Code] {
			return true
		}
		for _, class := range retryableSQLStateClasses {
			if strings.HasPrefix(pgErr.Code, class) {
				return true
			}
		}
		return false
	}

	// Connection-level failures before a PgError is even produced
	// (e.g. dial refused, connection reset) surface as plain errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

// Do calls fn at most cfg.MaxAttempts times in all (the first attempt plus
// MaxAttempts-1 retries), retrying only while its error is Retryable and
// waiting 2^n * BaseDelay * (0.5 + rand) between attempts (spec §7).
// Permanent errors propagate immediately without retry.
func Do(ctx context.Context, cfg *Config, operation string, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before %s attempt %d: %w", operation, attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := backoff(attempt, cfg)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during %s backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s: all %d attempts failed: %w", operation, cfg.MaxAttempts, lastErr)
}

func backoff(attempt int, cfg *Config) time.Duration {
	base := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	jitter := cfg.JitterFraction + rand.Float64()
	return time.Duration(base * jitter)
}
