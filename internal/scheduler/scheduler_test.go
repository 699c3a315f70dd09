package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAsync(ctx context.Context, s *Scheduler, tick TickFunc) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tick) }()
	return done
}

func TestRunTicksImmediatelyThenOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var count atomic.Int32
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())
	done := runAsync(ctx, s, func(context.Context, time.Time) error {
		count.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	stopped := count.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, count.Load(), "no ticks after Run returns")
}

func TestPausedSkipsIntervalButHonoursTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var count atomic.Int32
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	s.SetPaused(true)
	assert.True(t, s.Paused())
	runAsync(ctx, s, func(context.Context, time.Time) error {
		count.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())

	s.Trigger()
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.SetPaused(false)
	require.Eventually(t, func() bool { return count.Load() > 1 }, time.Second, 5*time.Millisecond)
}

func TestTickErrorsDoNotStopTheLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var count atomic.Int32
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	runAsync(ctx, s, func(context.Context, time.Time) error {
		count.Add(1)
		return errors.New("upstream down")
	})
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestStartupDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Interval: time.Second, StartupDelay: time.Hour}, zerolog.Nop())
	done := runAsync(ctx, s, func(context.Context, time.Time) error {
		t.Error("tick during startup delay")
		return nil
	})
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
