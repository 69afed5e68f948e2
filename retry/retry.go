// Package retry implements the transaction retry engine (spec.md §4.8):
// classify each failure as retryable or fatal, back off with jitter between
// attempts, and give up once a transaction-wide time budget is spent.
//
// The "current attempt, grows towards a steady state, resets on success"
// shape is the same one aznet/poll.go's AdaptivePoll gives a plain polling
// loop; here the schedule itself is delegated to
// github.com/cenkalti/backoff/v4 for exponential-with-jitter timing, and
// failed-attempt accumulation is delegated to
// github.com/hashicorp/go-multierror so a caller can inspect every
// suppressed error, not just the last one.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

// Classifier reports whether err should be retried. Callers plug in
// bolt.IsRetryable so this package stays free of a bolt dependency.
type Classifier func(err error) bool

// Metrics is retry's pluggable instrumentation hook.
type Metrics interface {
	IncrementAttempts()
	IncrementRetries()
	IncrementFailures()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncrementAttempts() {}
func (NopMetrics) IncrementRetries()  {}
func (NopMetrics) IncrementFailures() {}

// Config tunes the backoff schedule and the overall time budget.
type Config struct {
	MaxTransactionRetryTime time.Duration // 0 disables the budget (not recommended)
	InitialInterval         time.Duration
	MaxInterval             time.Duration
	Multiplier              float64
	RandomizationFactor     float64
}

// DefaultConfig starts at 1s, doubles each retry with 20% jitter, caps a
// single wait at 30s, and gives spec.md §8's 30s transaction budget. These
// differ from backoff.ExponentialBackOff's own defaults.
func DefaultConfig() Config {
	return Config{
		MaxTransactionRetryTime: 30 * time.Second,
		InitialInterval:         1 * time.Second,
		MaxInterval:             30 * time.Second,
		Multiplier:              2.0,
		RandomizationFactor:     0.2,
	}
}

// Engine runs a unit of work under the retry policy of spec.md §4.8.
type Engine struct {
	cfg        Config
	classify   Classifier
	metrics    Metrics
	newBackoff func() backoff.BackOff
}

// New builds an Engine. classify decides retryability (wire in
// bolt.IsRetryable); metrics may be nil.
func New(cfg Config, classify Classifier, metrics Metrics) *Engine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		cfg:      cfg,
		classify: classify,
		metrics:  metrics,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialInterval
			b.MaxInterval = cfg.MaxInterval
			b.Multiplier = cfg.Multiplier
			b.RandomizationFactor = cfg.RandomizationFactor
			b.MaxElapsedTime = 0 // Engine enforces the budget itself, not backoff
			return b
		},
	}
}

// Work is the unit of work retried on failure, e.g. "run this transaction
// function against a fresh connection".
type Work func(ctx context.Context) error

// ErrBudgetExceeded is returned when MaxTransactionRetryTime elapses before
// Work succeeds.
var ErrBudgetExceeded = errors.New("retry: transaction retry time budget exceeded")

// Run executes fn, retrying on classify-retryable errors with exponential
// backoff and jitter, until it succeeds, a non-retryable error occurs, ctx
// is cancelled, or MaxTransactionRetryTime elapses. On exhaustion it returns
// a *multierror.Error chaining every suppressed attempt, so callers can
// inspect the full retry history instead of only the final failure.
func (e *Engine) Run(ctx context.Context, fn Work) error {
	var deadline <-chan time.Time
	if e.cfg.MaxTransactionRetryTime > 0 {
		timer := time.NewTimer(e.cfg.MaxTransactionRetryTime)
		defer timer.Stop()
		deadline = timer.C
	}

	bo := e.newBackoff()
	var suppressed *multierror.Error

	for {
		e.metrics.IncrementAttempts()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !e.classify(err) {
			e.metrics.IncrementFailures()
			if suppressed != nil {
				suppressed.Errors = append(suppressed.Errors, err)
				return suppressed.ErrorOrNil()
			}
			return err
		}
		suppressed = multierror.Append(suppressed, err)

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			e.metrics.IncrementFailures()
			return suppressed.ErrorOrNil()
		}
		e.metrics.IncrementRetries()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.metrics.IncrementFailures()
			suppressed.Errors = append(suppressed.Errors, ctx.Err())
			return suppressed.ErrorOrNil()
		case <-deadline:
			timer.Stop()
			e.metrics.IncrementFailures()
			suppressed.Errors = append(suppressed.Errors, ErrBudgetExceeded)
			return suppressed.ErrorOrNil()
		case <-timer.C:
		}
	}
}
