package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/pkg/logger"
)

// countingCycler counts cycles and detects overlapping runs
type countingCycler struct {
	calls    atomic.Int32
	running  atomic.Int32
	overlaps atomic.Int32
	delay    time.Duration
	err      error
}

func (c *countingCycler) RunOnce(ctx context.Context) (*Result, error) {
	if c.running.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	defer c.running.Add(-1)

	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return &Result{}, c.err
}

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	cycler := &countingCycler{}
	s, err := NewScheduler(cycler, ScheduleOptions{Interval: 20 * time.Millisecond}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return cycler.calls.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return cycler.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := cycler.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, cycler.calls.Load(), "no cycles after Stop")
}

func TestScheduler_NoOverlap(t *testing.T) {
	cycler := &countingCycler{delay: 30 * time.Millisecond}
	s, err := NewScheduler(cycler, ScheduleOptions{Interval: time.Millisecond}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return cycler.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Zero(t, cycler.overlaps.Load())
}

func TestScheduler_ContinuesAfterErrors(t *testing.T) {
	cycler := &countingCycler{err: errors.New("store locked")}
	s, err := NewScheduler(cycler, ScheduleOptions{Interval: 5 * time.Millisecond}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return cycler.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(&countingCycler{}, ScheduleOptions{}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)

	s.Stop() // before start

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	cycler := &countingCycler{}
	s, err := NewScheduler(cycler, ScheduleOptions{Interval: time.Hour}, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cycler.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_NextWait(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 2, 30, 0, time.UTC)

	interval, err := NewScheduler(&countingCycler{}, ScheduleOptions{Interval: time.Minute}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, interval.nextWait(base, base.Add(10*time.Second)))
	assert.Equal(t, time.Duration(0), interval.nextWait(base, base.Add(2*time.Minute)), "overrun runs next cycle immediately")

	cron, err := NewScheduler(&countingCycler{}, ScheduleOptions{Interval: time.Hour, Cron: "*/5 * * * *"}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute+30*time.Second, cron.nextWait(base, base))
}

func TestNewScheduler_InvalidCron(t *testing.T) {
	_, err := NewScheduler(&countingCycler{}, ScheduleOptions{Cron: "every minute"}, logger.NewTestLogger())
	assert.Error(t, err)
}
