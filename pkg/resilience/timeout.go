package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn to limit. fn receives a context that is cancelled at
// the deadline; a fn that honours its context returns promptly, one that does
// not is abandoned in its goroutine while the caller gets the timeout error.
// A non-positive limit runs fn directly. The enrichment stage wraps each
// external lookup this way so one slow endpoint cannot stall the queue.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- fn(bounded)
	}()

	select {
	case err := <-result:
		return err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", name, err)
		}
		return fmt.Errorf("%s exceeded %v: %w", name, limit, context.DeadlineExceeded)
	}
}
