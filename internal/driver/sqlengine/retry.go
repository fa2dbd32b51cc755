package sqlengine

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const retryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient connection error
// worth retrying rather than surfacing as DATABASE_ERROR immediately.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
		"database is locked",
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// withRetry runs op with exponential backoff for transient errors. Metrics
// on the number of retries are recorded by the caller.
func withRetry(ctx context.Context, op func() error) (attempts int, err error) {
	bo := newRetryBackoff()
	err = backoff.Retry(func() error {
		attempts++
		opErr := op()
		if opErr != nil && isRetryableError(opErr) {
			return opErr
		}
		if opErr != nil {
			return backoff.Permanent(opErr)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	return attempts, err
}
