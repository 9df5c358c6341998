package wait

import (
	"time"

	"github.com/avast/retry-go/v4"
)

// Strategy decides how long to pause between attempts.
type Strategy interface {
	retryOptions() []retry.Option
}

// FixedInterval waits the same amount of time between every attempt.
// It is the default strategy for readiness polling and runtime configuration.
type FixedInterval struct {
	Interval time.Duration
}

func (s FixedInterval) retryOptions() []retry.Option {
	return []retry.Option{
		retry.Delay(s.Interval),
		retry.DelayType(retry.FixedDelay),
	}
}

// ExponentialBackoff doubles the pause after every failed attempt, capped at Max.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoff) retryOptions() []retry.Option {
	opts := []retry.Option{
		retry.Delay(s.Initial),
		retry.DelayType(retry.BackOffDelay),
	}
	if s.Max > 0 {
		opts = append(opts, retry.MaxDelay(s.Max))
	}
	return opts
}
