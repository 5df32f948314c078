package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"furnidesk/internal/constants"
	"furnidesk/internal/metrics"
	"furnidesk/internal/retry"

	"github.com/mattn/go-sqlite3"
)

var writeBackoff = retry.BackoffConfig{
	InitialDelay: constants.DefaultDatabaseBackoffMs * time.Millisecond,
	MaxDelay:     constants.DefaultDatabaseMaxBackoffMs * time.Millisecond,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// withWriteRetry runs a write, retrying while sqlite reports writer
// contention. Cancellation is returned as is.
func withWriteRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	backoff := retry.NewBackoff(writeBackoff)
	backoff.OnRetry = func(int, time.Duration, error) {
		metrics.IncrementCounter("database_write_retries_total", map[string]string{"operation": operation}, "Database writes retried after contention")
	}

	attempts := 0
	err := backoff.RetryWithPredicate(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		return fn(ctx)
	}, isRetryableDBError)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	case !isRetryableDBError(err):
		return fmt.Errorf("%s failed (non-retryable): %w", operation, err)
	default:
		return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
	}
}

func isRetryableDBError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "disk I/O error")
}
