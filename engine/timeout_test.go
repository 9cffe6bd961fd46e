package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNodeTimeoutPrecedence(t *testing.T) {
	if got := nodeTimeout(&NodePolicy{Timeout: 5 * time.Second}, 10*time.Second); got != 5*time.Second {
		t.Fatalf("per-node timeout should win, got %v", got)
	}
	if got := nodeTimeout(nil, 10*time.Second); got != 10*time.Second {
		t.Fatalf("no policy should fall back to the engine default, got %v", got)
	}
	if got := nodeTimeout(&NodePolicy{}, 10*time.Second); got != 10*time.Second {
		t.Fatalf("a zero-value per-node timeout should defer to the default, got %v", got)
	}
	if got := nodeTimeout(nil, 0); got != 0 {
		t.Fatalf("no timeout anywhere should mean unlimited (0), got %v", got)
	}
}

func TestRunWithTimeoutUnlimited(t *testing.T) {
	called := false
	err := runWithTimeout(context.Background(), "n1", nil, 0, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was never invoked")
	}
}

func TestRunWithTimeoutExpires(t *testing.T) {
	err := runWithTimeout(context.Background(), "n1", nil, 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("err type = %T, want *EngineError", err)
	}
	if ee.Code != "NODE_TIMEOUT" {
		t.Fatalf("Code = %q, want NODE_TIMEOUT", ee.Code)
	}
}

func TestRunWithTimeoutPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	err := runWithTimeout(context.Background(), "n1", nil, time.Second, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the handler's own error propagated unchanged", err)
	}
}
