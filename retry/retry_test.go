package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

type transientErr struct{ msg string }

func (e *transientErr) Error() string { return e.msg }

type fatalErr struct{ msg string }

func (e *fatalErr) Error() string { return e.msg }

func classify(err error) bool {
	var t *transientErr
	return errors.As(err, &t)
}

func fastConfig() Config {
	return Config{
		MaxTransactionRetryTime: time.Second,
		InitialInterval:         1 * time.Millisecond,
		MaxInterval:             5 * time.Millisecond,
		Multiplier:              2.0,
		RandomizationFactor:     0,
	}
}

func TestRunSucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	e := New(fastConfig(), classify, nil)
	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestRunRetriesTransientErrorsThenSucceeds(t *testing.T) {
	e := New(fastConfig(), classify, nil)
	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &transientErr{"deadlock"}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRunStopsImmediatelyOnFatalError(t *testing.T) {
	e := New(fastConfig(), classify, nil)
	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return &fatalErr{"syntax error"}
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a fatal error, got %d", calls)
	}
}

func TestRunExhaustsBudgetAndReturnsChainedErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxTransactionRetryTime = 20 * time.Millisecond
	e := New(cfg, classify, nil)
	calls := 0
	err := e.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return &transientErr{"unavailable"}
	})
	if err == nil {
		t.Fatal("expected an error after budget exhaustion")
	}
	if calls < 2 {
		t.Fatalf("expected at least 2 attempts before the budget ran out, got %d", calls)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) < calls {
		t.Fatalf("expected a *multierror.Error chaining all %d attempts, got %v", calls, err)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	e := New(fastConfig(), classify, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := e.Run(ctx, func(ctx context.Context) error {
		calls++
		return &transientErr{"unavailable"}
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}
