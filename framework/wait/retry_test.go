package wait

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// instantTimer fires immediately and records the requested delays.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (t *instantTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	c := make(chan time.Time, 1)
	c <- time.Now()
	return c
}

func TestDo(t *testing.T) {
	t.Parallel()

	t.Run("always failing makes exactly max attempts", func(t *testing.T) {
		timer := &instantTimer{}
		calls := 0
		out := Do(context.Background(), func(context.Context) error {
			calls++
			return errors.New("boom")
		}, Policy{Strategy: FixedInterval{Interval: 2 * time.Second}, MaxAttempts: 5, Timer: timer})

		require.False(t, out.OK())
		require.Equal(t, 5, calls)
		require.Equal(t, 5, out.Attempts)
		require.EqualError(t, out.Err, "boom")
		require.Len(t, timer.delays, 4, "no pause after the final attempt")
		for _, d := range timer.delays {
			require.Equal(t, 2*time.Second, d)
		}
	})

	t.Run("succeeds on attempt k", func(t *testing.T) {
		for k := 1; k <= 4; k++ {
			calls := 0
			out := Do(context.Background(), func(context.Context) error {
				calls++
				if calls < k {
					return errors.New("not yet")
				}
				return nil
			}, Policy{MaxAttempts: 4, Timer: &instantTimer{}})

			require.True(t, out.OK())
			require.Equal(t, k, calls)
			require.Equal(t, k, out.Attempts)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		cause := errors.New("bad request")
		out := Do(context.Background(), func(context.Context) error {
			return Permanent(cause)
		}, Policy{MaxAttempts: 10, Timer: &instantTimer{}})

		require.False(t, out.OK())
		require.True(t, out.Permanent)
		require.Equal(t, 1, out.Attempts)
		require.ErrorIs(t, out.Err, cause)
	})

	t.Run("unbounded policy is rejected", func(t *testing.T) {
		calls := 0
		out := Do(context.Background(), func(context.Context) error {
			calls++
			return nil
		}, Policy{})

		require.False(t, out.OK())
		require.Zero(t, calls)
	})

	t.Run("on retry sees each failed attempt", func(t *testing.T) {
		var seen []uint
		Do(context.Background(), func(context.Context) error {
			return errors.New("fail")
		}, Policy{
			MaxAttempts: 3,
			Timer:       &instantTimer{},
			OnRetry:     func(attempt uint, _ error) { seen = append(seen, attempt) },
		})
		require.GreaterOrEqual(t, len(seen), 2)
		require.Equal(t, []uint{1, 2}, seen[:2])
	})

	t.Run("exponential backoff grows and is capped", func(t *testing.T) {
		timer := &instantTimer{}
		Do(context.Background(), func(context.Context) error {
			return errors.New("fail")
		}, Policy{
			Strategy:    ExponentialBackoff{Initial: 10 * time.Millisecond, Max: 100 * time.Millisecond},
			MaxAttempts: 8,
			Timer:       timer,
		})

		require.Len(t, timer.delays, 7)
		require.Greater(t, timer.delays[1], timer.delays[0])
		for i, d := range timer.delays {
			require.LessOrEqual(t, d, 100*time.Millisecond)
			if i > 0 {
				require.GreaterOrEqual(t, d, timer.delays[i-1])
			}
		}
	})
}

func TestRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	ok := Retry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	}, 3, time.Millisecond)
	require.False(t, ok)
	require.Equal(t, 3, calls)

	calls = 0
	ok = Retry(context.Background(), func(context.Context) error {
		calls++
		if calls == 2 {
			return nil
		}
		return errors.New("fail")
	}, 3, time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 2, calls)
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("exhausted budget is a timeout", func(t *testing.T) {
		ready, err := Poll(context.Background(), "widget", func(context.Context) (bool, error) {
			return false, nil
		}, Policy{MaxAttempts: 3, Timer: &instantTimer{}})

		require.False(t, ready)
		var te *types.TimeoutError
		require.ErrorAs(t, err, &te)
		require.Equal(t, "widget", te.Operation)
		require.Equal(t, 3, te.Attempts)
	})

	t.Run("permanent probe error is not a timeout", func(t *testing.T) {
		ready, err := Poll(context.Background(), "widget", func(context.Context) (bool, error) {
			return false, Permanent(errors.New("misconfigured"))
		}, Policy{MaxAttempts: 3, Timer: &instantTimer{}})

		require.False(t, ready)
		var te *types.TimeoutError
		require.False(t, errors.As(err, &te))
		require.ErrorContains(t, err, "misconfigured")
	})

	t.Run("ready on third probe", func(t *testing.T) {
		probes := 0
		ready, err := Poll(context.Background(), "widget", func(context.Context) (bool, error) {
			probes++
			return probes == 3, nil
		}, Policy{MaxAttempts: 5, Timer: &instantTimer{}})

		require.NoError(t, err)
		require.True(t, ready)
		require.Equal(t, 3, probes)
	})
}
