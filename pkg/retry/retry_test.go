package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleeper(waits *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var waits []time.Duration
	r := New(Config{MaxAttempts: 3, BaseDelay: time.Second}).WithSleeper(recordingSleeper(&waits))

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("503")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	r := New(Config{MaxAttempts: 3, BaseDelay: time.Second}).WithSleeper(recordingSleeper(&waits))

	boom := errors.New("connection refused")
	calls := 0
	err := r.Do(context.Background(), func(int) error { calls++; return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2) // no wait after the last attempt
}

func TestDo_StopIsNotRetried(t *testing.T) {
	r := New(DefaultConfig()).WithSleeper(func(context.Context, time.Duration) error {
		t.Fatal("should not sleep")
		return nil
	})

	bad := errors.New("insufficient buying power")
	calls := 0
	err := r.Do(context.Background(), func(int) error { calls++; return Stop(bad) })
	assert.Same(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(Config{MaxAttempts: 3, BaseDelay: time.Hour})

	err := r.Do(ctx, func(int) error { return errors.New("timeout") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_Capped(t *testing.T) {
	r := New(Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	assert.Equal(t, time.Second, r.Delay(0))
	assert.Equal(t, 4*time.Second, r.Delay(2))
	assert.Equal(t, 5*time.Second, r.Delay(10))
}
