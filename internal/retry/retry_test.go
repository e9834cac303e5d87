package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyErr struct{ transient bool }

func (e flakyErr) Error() string   { return "flaky" }
func (e flakyErr) Transient() bool { return e.transient }

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	const failures = 4
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = noSleep(&delays)

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= failures {
			return flakyErr{transient: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, failures+1, attempts)
	assert.Equal(t, failures+1, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
}

func TestDo_NonTransientFailsOnce(t *testing.T) {
	p := DefaultPolicy()
	p.Sleep = noSleep(nil)

	calls := 0
	fatal := errors.New("bad request")
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentWrapperStopsRetry(t *testing.T) {
	p := DefaultPolicy()
	p.Sleep = noSleep(nil)

	inner := flakyErr{transient: true}
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return Permanent(inner)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, inner)
}

func TestDo_Exhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 3, Sleep: noSleep(nil)}

	var retried []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	attempts, err := p.Do(context.Background(), func(context.Context) error {
		return flakyErr{transient: true}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	attempts, err := p.Do(ctx, func(context.Context) error {
		return flakyErr{transient: true}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDelayCapped(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 32*time.Second, p.Delay(6))
	assert.Equal(t, 60*time.Second, p.Delay(7))
	assert.Equal(t, 60*time.Second, p.Delay(250))
}

func TestDoWithResult(t *testing.T) {
	p := Policy{MaxAttempts: 5, Sleep: noSleep(nil)}
	calls := 0
	got, attempts, err := DoWithResult(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", flakyErr{transient: true}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, IsTransient(flakyErr{transient: true}))
	assert.False(t, IsTransient(Permanent(context.DeadlineExceeded)))
}
