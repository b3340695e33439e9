package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// instantTimer fires as soon as it is started.
type instantTimer struct {
	c chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

func noSleep(p Policy) Policy {
	p.timer = &instantTimer{}
	return p
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	p := noSleep(Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_SucceedsOnRetry(t *testing.T) {
	p := noSleep(Default())
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDo_NonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	p := noSleep(Policy{MaxAttempts: 5, Retryable: func(err error) bool { return !errors.Is(err, permanent) }})
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDo_ContextCanceledNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Default().Do(ctx, func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_AttemptsAreCapped(t *testing.T) {
	p := noSleep(Policy{MaxAttempts: 1000})
	calls := 0
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Equal(t, maxAttemptsCap, calls)
}

func TestBackoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}
	require.Equal(t, 100*time.Millisecond, p.Backoff(1))
	require.Equal(t, 200*time.Millisecond, p.Backoff(2))
	require.Equal(t, 300*time.Millisecond, p.Backoff(3))
	require.Equal(t, 300*time.Millisecond, p.Backoff(6))
}

func TestDo_CancelDuringWaitStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestNone_SingleAttempt(t *testing.T) {
	calls := 0
	err := None().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
