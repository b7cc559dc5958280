package escalation

import "fmt"

// EventKind identifies a notification produced by the engine
type EventKind int

const (
	// EventProbeError means the height could not be fetched
	EventProbeError EventKind = iota
	// EventStallAlert means a threshold was crossed for the first time in the episode
	EventStallAlert
	// EventResolved means an alerted stall episode ended because the height advanced
	EventResolved
)

// String returns the kind name
func (k EventKind) String() string {
	switch k {
	case EventProbeError:
		return "probe_error"
	case EventStallAlert:
		return "stall_alert"
	case EventResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is a notification the runner formats and dispatches.
type Event struct {
	Kind EventKind
	// Threshold is set for EventStallAlert only
	Threshold Threshold
	// Height is the observed height; zero for EventProbeError
	Height uint64
	// ElapsedMinutes is the stall duration when the event was produced
	ElapsedMinutes int64
}

// ProbeError builds an EventProbeError
func ProbeError() Event {
	return Event{Kind: EventProbeError}
}

// StallAlert builds an EventStallAlert
func StallAlert(t Threshold, height uint64, elapsed int64) Event {
	return Event{Kind: EventStallAlert, Threshold: t, Height: height, ElapsedMinutes: elapsed}
}

// Resolved builds an EventResolved
func Resolved(height uint64) Event {
	return Event{Kind: EventResolved, Height: height}
}

// String renders the event for logs
func (e Event) String() string {
	switch e.Kind {
	case EventStallAlert:
		return fmt.Sprintf("stall_alert(%s, height=%d)", e.Threshold.Name, e.Height)
	case EventResolved:
		return fmt.Sprintf("resolved(height=%d)", e.Height)
	default:
		return e.Kind.String()
	}
}
