// Package runner drives monitor cycles: probe the head height, evaluate the
// escalation state, notify and persist.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/height"
	"github.com/wemix/headwatch/internal/metrics"
	"github.com/wemix/headwatch/internal/state"
	"github.com/wemix/headwatch/pkg/logger"
)

// Dispatcher delivers rendered messages
type Dispatcher interface {
	Notify(ctx context.Context, msg *alerting.Message) error
}

// Options tunes a Runner
type Options struct {
	// ProbeTimeout bounds a single height query
	ProbeTimeout time.Duration
	// NotifyProbeErrors sends a message when the probe fails
	NotifyProbeErrors bool
}

// Result describes one completed cycle
type Result struct {
	// Observed is nil when the probe failed
	Observed         *uint64
	Previous         escalation.MonitorState
	Next             escalation.MonitorState
	Events           []escalation.Event
	Level            int
	LevelName        string
	ElapsedMinutes   int64
	DispatchFailures int
	At               time.Time
	Duration         time.Duration
}

// Status is a snapshot of the runner for status reporting
type Status struct {
	Cycles     uint64
	LastResult *Result
	LastError  error
	LastRunAt  time.Time
}

// Runner executes monitor cycles
type Runner struct {
	provider height.Provider
	store    state.Store
	notifier Dispatcher
	logger   *logger.Logger
	opts     Options

	mu        sync.RWMutex
	engine    *escalation.Engine
	formatter *alerting.Formatter
	collector *metrics.Collector
	clock     func() time.Time

	statusMu sync.RWMutex
	status   Status
}

// New creates a runner
func New(provider height.Provider, store state.Store, engine *escalation.Engine, formatter *alerting.Formatter, notifier Dispatcher, log *logger.Logger, opts Options) *Runner {
	return &Runner{
		provider:  provider,
		store:     store,
		notifier:  notifier,
		logger:    log,
		opts:      opts,
		engine:    engine,
		formatter: formatter,
		clock:     time.Now,
	}
}

// SetCollector enables metrics observation
func (r *Runner) SetCollector(c *metrics.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collector = c
}

// SetClock replaces the wall clock
func (r *Runner) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Reload swaps the thresholds and message templates used by later cycles
func (r *Runner) Reload(engine *escalation.Engine, formatter *alerting.Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine = engine
	r.formatter = formatter
}

// Engine returns the engine in use
func (r *Runner) Engine() *escalation.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine
}

// Status returns a snapshot of the last cycle
func (r *Runner) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// RunOnce performs one cycle. Exclusive access to the state is held from
// load to persist, so overlapping invocations cannot double-notify.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	r.mu.RLock()
	engine, formatter, collector, clock := r.engine, r.formatter, r.collector, r.clock
	r.mu.RUnlock()

	start := time.Now()
	var res *Result

	err := r.store.Update(ctx, func(prev escalation.MonitorState) (escalation.MonitorState, error) {
		observed := height.Fetch(ctx, r.provider, r.opts.ProbeTimeout, r.logger)
		now := clock()
		next, events := engine.Evaluate(observed, now, prev)

		res = &Result{
			Observed:       observed,
			Previous:       prev,
			Next:           next,
			Events:         events,
			Level:          engine.Level(next),
			LevelName:      engine.LevelName(next),
			ElapsedMinutes: next.ElapsedMinutes(now),
			At:             now,
		}
		res.DispatchFailures = r.dispatch(ctx, formatter, events, now)

		return next, nil
	})
	duration := time.Since(start)

	if err != nil {
		now := clock()
		if errors.Is(err, state.ErrCorrupt) {
			r.logger.Error("monitor state is corrupt, cycle aborted", zap.Error(err))
			if notifyErr := r.notifier.Notify(ctx, formatter.StateError(err, now)); notifyErr != nil {
				r.logger.Error("failed to report state error", zap.Error(notifyErr))
			}
		} else {
			r.logger.Error("monitor cycle failed", zap.Error(err))
		}

		r.record(nil, err, now)
		if collector != nil {
			collector.Observe(metrics.Observation{Now: now, Duration: duration, Err: err})
		}
		return nil, fmt.Errorf("monitor cycle failed: %w", err)
	}

	res.Duration = duration
	r.record(res, nil, res.At)
	r.logCycle(res)

	if collector != nil {
		collector.Observe(metrics.Observation{
			Height:           res.Observed,
			State:            res.Next,
			Level:            res.Level,
			Now:              res.At,
			Events:           res.Events,
			DispatchFailures: res.DispatchFailures,
			Duration:         duration,
		})
	}

	return res, nil
}

// dispatch sends every event in order and returns the number of failures
func (r *Runner) dispatch(ctx context.Context, formatter *alerting.Formatter, events []escalation.Event, now time.Time) int {
	failures := 0
	for _, ev := range events {
		if ev.Kind == escalation.EventProbeError && !r.opts.NotifyProbeErrors {
			continue
		}

		msg, err := formatter.Format(ev, now)
		if err != nil {
			r.logger.Error("failed to format notification", zap.Stringer("event", ev), zap.Error(err))
			failures++
			continue
		}

		if err := r.notifier.Notify(ctx, msg); err != nil {
			r.logger.Error("failed to dispatch notification", zap.Stringer("event", ev), zap.Error(err))
			failures++
		}
	}
	return failures
}

func (r *Runner) record(res *Result, err error, at time.Time) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.Cycles++
	r.status.LastRunAt = at
	r.status.LastError = err
	if res != nil {
		r.status.LastResult = res
	}
}

func (r *Runner) logCycle(res *Result) {
	fields := []zap.Field{
		zap.Int64("elapsed_minutes", res.ElapsedMinutes),
		zap.String("level", res.LevelName),
		zap.Duration("duration", res.Duration),
	}
	if res.Observed != nil {
		fields = append(fields, zap.Uint64("height", *res.Observed))
	} else {
		fields = append(fields, zap.Bool("probe_failed", true))
	}
	if len(res.Events) > 0 {
		fired := make([]string, len(res.Events))
		for i, ev := range res.Events {
			fired[i] = ev.String()
		}
		fields = append(fields, zap.Strings("fired", fired))
	}
	if res.DispatchFailures > 0 {
		fields = append(fields, zap.Int("dispatch_failures", res.DispatchFailures))
	}

	r.logger.Info("monitor cycle complete", fields...)
}
