package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutCompletesInTime(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "op", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout: %v", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestWithTimeoutZeroRunsDirectly(t *testing.T) {
	sentinel := errors.New("direct")
	err := WithTimeout(context.Background(), 0, "op", func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}

func TestWithTimeoutPropagatesFnError(t *testing.T) {
	sentinel := errors.New("lookup failed")
	err := WithTimeout(context.Background(), time.Second, "op", func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}
