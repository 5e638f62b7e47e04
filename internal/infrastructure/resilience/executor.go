// Package resilience runs calls to external dependencies behind a per-operation
// circuit breaker, bounded exponential retry and an optional recovery hook.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Executor is safe for concurrent use. A nil *Executor runs every call once,
// still honouring the recovery hook.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

type callOptions struct {
	reinit func(context.Context) error
}

type CallOption func(*callOptions)

// WithRecovery runs reinit once when an attempt fails with a Recoverable
// error, then repeats the attempt without spending the retry budget.
func WithRecovery(reinit func(context.Context) error) CallOption {
	return func(o *callOptions) { o.reinit = reinit }
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify Classifier,
	opts ...CallOption,
) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = func(error) Class { return Permanent }
	}
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}

	if e == nil {
		return attempt(ctx, op, fn, classify, call, RetryPolicy{MaxAttempts: 1})
	}
	if !e.cfg.Breaker.Enabled {
		return attempt(ctx, op, fn, classify, call, e.cfg.Retry)
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, attempt(ctx, op, fn, classify, call, e.cfg.Retry)
	})
	return err
}

func attempt(
	ctx context.Context,
	op string,
	fn func(context.Context) error,
	classify Classifier,
	call callOptions,
	retry RetryPolicy,
) error {
	wait := retry.InitialBackoff
	recovered := false
	for n := 1; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classify(err)
		if class == Recoverable && call.reinit != nil && !recovered {
			recovered = true
			log.Ctx(ctx).Warn().Err(err).Str("operation", op).Msg("recover_and_retry")
			if reinitErr := call.reinit(ctx); reinitErr != nil {
				return fmt.Errorf("%s: recover after %v: %w", op, err, reinitErr)
			}
			continue
		}
		if class != Transient || n >= retry.MaxAttempts {
			return err
		}

		log.Ctx(ctx).Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", n).
			Int("max_attempts", retry.MaxAttempts).
			Dur("backoff", wait).
			Msg("retry_attempt")
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		wait = retry.next(wait)
		n++
	}
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	policy := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= policy.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).recorded()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("operation", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit_breaker_state_change")
			if e.cfg.OnStateChange != nil {
				e.cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	e.breakers[op] = cb
	return cb
}
