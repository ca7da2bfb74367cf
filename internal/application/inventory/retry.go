package inventory

import (
	"context"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
)

// RetryPolicy re-runs operations that failed with a transient error
// (lock wait exhausted, optimistic version conflict)
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Do calls fn until it succeeds, fails permanently, or the attempts are used
// up. The wait doubles after every transient failure.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !shared.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
