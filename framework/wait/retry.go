package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// Policy bounds a retry or polling loop. At least one of MaxAttempts and
// MaxDuration must be set; no loop runs unbounded.
type Policy struct {
	// Strategy spaces out attempts. Defaults to a one second FixedInterval.
	Strategy Strategy
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// MaxDuration caps the wall-clock time spent, in-flight attempts included.
	MaxDuration time.Duration
	// OnRetry, if set, is called after each failed attempt.
	OnRetry func(attempt uint, err error)
	// Timer replaces the wall clock used between attempts.
	Timer retry.Timer
}

func (p Policy) validate() error {
	if p.MaxAttempts == 0 && p.MaxDuration <= 0 {
		return errors.New("retry policy needs MaxAttempts or MaxDuration")
	}
	return nil
}

// Outcome records how a retried operation went.
type Outcome struct {
	// Attempts is how many times the operation was invoked.
	Attempts int
	// Err is the last error observed, nil on success.
	Err error
	// Permanent is set when the operation gave up early via Permanent.
	Permanent bool
}

// OK reports whether the operation eventually succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Permanent marks err as non-retryable; the loop stops immediately.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// Do invokes op until it succeeds or the policy is exhausted.
func Do(ctx context.Context, op func(ctx context.Context) error, p Policy) Outcome {
	if err := p.validate(); err != nil {
		return Outcome{Err: err, Permanent: true}
	}

	if p.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.MaxDuration)
		defer cancel()
	}

	strategy := p.Strategy
	if strategy == nil {
		strategy = FixedInterval{Interval: time.Second}
	}

	var (
		out     Outcome
		lastErr error
	)
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if p.OnRetry != nil {
				p.OnRetry(n+1, err)
			}
		}),
	}
	opts = append(opts, strategy.retryOptions()...)
	if p.Timer != nil {
		opts = append(opts, retry.WithTimer(p.Timer))
	}

	err := retry.Do(func() error {
		out.Attempts++
		err := op(ctx)
		lastErr = err
		if err != nil && !retry.IsRecoverable(err) {
			out.Permanent = true
			lastErr = errors.Unwrap(err)
		}
		return err
	}, opts...)
	if err == nil {
		return out
	}

	// prefer the operation's own error over a bare context error.
	if lastErr != nil {
		out.Err = lastErr
	} else {
		out.Err = err
	}
	return out
}

// Retry is the bounded retry primitive: it invokes op up to maxAttempts times,
// sleeping delay after each failure, and reports whether any attempt succeeded.
func Retry(ctx context.Context, op func(ctx context.Context) error, maxAttempts uint, delay time.Duration) bool {
	return Do(ctx, op, Policy{
		Strategy:    FixedInterval{Interval: delay},
		MaxAttempts: maxAttempts,
	}).OK()
}

// Probe checks a condition once. It returns true when the condition holds,
// false (or a plain error) when it does not hold yet, and an error wrapped
// with Permanent when polling should stop.
type Probe func(ctx context.Context) (bool, error)

var errNotReady = errors.New("condition not met")

// Poll runs probe under policy until it reports true. Exhausting the policy
// yields a *types.TimeoutError naming operation.
func Poll(ctx context.Context, operation string, probe Probe, p Policy) (bool, error) {
	out := Do(ctx, func(ctx context.Context) error {
		ok, err := probe(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errNotReady
		}
		return nil
	}, p)

	if out.OK() {
		return true, nil
	}
	if out.Permanent {
		return false, fmt.Errorf("%s: %w", operation, out.Err)
	}
	return false, &types.TimeoutError{
		Operation: operation,
		After:     p.MaxDuration,
		Attempts:  out.Attempts,
		Err:       out.Err,
	}
}
