// Package escalation decides, from a freshly observed head height and the
// previously persisted state, which stall alerts fire and what to persist next.
//
// The engine is pure: no I/O, no clock, no goroutines. Callers supply the
// observation time and persist the returned state themselves.
package escalation

import "time"

// Engine evaluates observations against an ordered list of thresholds.
// It is safe for concurrent use since it never mutates itself.
type Engine struct {
	thresholds []Threshold
}

// NewEngine validates thresholds and orders them ascending by stall duration.
func NewEngine(thresholds []Threshold) (*Engine, error) {
	if err := ValidateThresholds(thresholds); err != nil {
		return nil, err
	}
	return &Engine{thresholds: sortThresholds(thresholds)}, nil
}

// Thresholds returns a copy of the ordered thresholds
func (e *Engine) Thresholds() []Threshold {
	out := make([]Threshold, len(e.thresholds))
	copy(out, e.thresholds)
	return out
}

// Evaluate computes the next state and the ordered events for one observation.
//
// observed is nil when the probe failed. The input state is never modified.
func (e *Engine) Evaluate(observed *uint64, now time.Time, state MonitorState) (MonitorState, []Event) {
	next := state.Clone()

	// Probe failure leaves the bookkeeping untouched
	if observed == nil {
		return next, []Event{ProbeError()}
	}

	height := *observed
	nowSec := time.Unix(now.Unix(), 0)

	if height > state.LastKnownHeight {
		var events []Event
		if state.AlertsSent.Len() > 0 {
			events = append(events, Resolved(height))
		}
		next.LastKnownHeight = height
		next.LastUpdatedAt = nowSec
		next.AlertsSent = AlertSet{}
		return next, events
	}

	// Unchanged or regressed: only a strict increase ends a stall episode
	if !next.HasUpdate() {
		next.LastUpdatedAt = nowSec
	}

	elapsed := next.ElapsedMinutes(now)

	var events []Event
	for _, t := range e.thresholds {
		if elapsed < int64(t.StallMinutes) || next.AlertsSent.Has(t.Name) {
			continue
		}
		events = append(events, StallAlert(t, height, elapsed))
		next.AlertsSent.Add(t.Name)
	}

	next.LastKnownHeight = height
	return next, events
}

// Level returns the escalation level of state: 0 when healthy, otherwise the
// 1-based position of the highest threshold already alerted.
func (e *Engine) Level(state MonitorState) int {
	level := 0
	for i, t := range e.thresholds {
		if state.AlertsSent.Has(t.Name) {
			level = i + 1
		}
	}
	return level
}

// LevelName returns the name of the highest alerted threshold, or "healthy".
func (e *Engine) LevelName(state MonitorState) string {
	level := e.Level(state)
	if level == 0 {
		return "healthy"
	}
	return e.thresholds[level-1].Name
}

// Pending returns the thresholds that would still fire in the current episode.
func (e *Engine) Pending(state MonitorState) []Threshold {
	var pending []Threshold
	for _, t := range e.thresholds {
		if !state.AlertsSent.Has(t.Name) {
			pending = append(pending, t)
		}
	}
	return pending
}
