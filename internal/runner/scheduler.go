package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// DefaultInterval is the cycle period when neither interval nor cron is set
const DefaultInterval = time.Minute

// Cycler runs one monitor cycle
type Cycler interface {
	RunOnce(ctx context.Context) (*Result, error)
}

// ScheduleOptions selects between a fixed interval and a cron expression.
// Cron wins when both are set.
type ScheduleOptions struct {
	Interval time.Duration
	Cron     string
}

// Scheduler runs cycles repeatedly until stopped.
//
// The first cycle starts immediately. Cycles never overlap: the next wait is
// computed only after the previous cycle returns, and a cycle that overruns
// its slot is followed by the next one right away.
//
// Thread-safety: Start and Stop can be called concurrently.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	cron     *cronexpr.Expression
	cronSpec string
	logger   *logger.Logger
	clock    func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cycler Cycler, opts ScheduleOptions, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cycler:   cycler,
		interval: opts.Interval,
		logger:   log,
		clock:    time.Now,
	}

	if opts.Cron != "" {
		expr, err := cronexpr.Parse(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", opts.Cron, err)
		}
		s.cron = expr
		s.cronSpec = opts.Cron
	} else if s.interval <= 0 {
		s.interval = DefaultInterval
	}

	return s, nil
}

// Start runs the loop in the background. It returns an error if the
// scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()

	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to return.
// Calling Stop more than once is safe.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Run executes cycles on the schedule until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", s.describe())

	for {
		started := s.clock()
		if _, err := s.cycler.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("cycle failed", zap.Error(err))
		}

		wait := s.nextWait(started, s.clock())
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// nextWait returns how long to sleep after a cycle that began at started
// and finished at now
func (s *Scheduler) nextWait(started, now time.Time) time.Duration {
	var next time.Time
	if s.cron != nil {
		next = s.cron.Next(now)
		if next.IsZero() {
			// expression has no future match, e.g. a past year
			return 24 * time.Hour
		}
	} else {
		next = started.Add(s.interval)
	}

	wait := next.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *Scheduler) describe() zap.Field {
	if s.cron != nil {
		return zap.String("cron", s.cronSpec)
	}
	return zap.Duration("interval", s.interval)
}
