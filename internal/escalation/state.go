package escalation

import (
	"sort"
	"time"
)

// AlertSet holds the threshold names already notified in the current stall episode.
type AlertSet map[string]struct{}

// NewAlertSet builds a set from names
func NewAlertSet(names ...string) AlertSet {
	s := make(AlertSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set
func (s AlertSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts name into the set
func (s AlertSet) Add(name string) {
	s[name] = struct{}{}
}

// Len returns the number of names
func (s AlertSet) Len() int {
	return len(s)
}

// Clone returns an independent copy, never nil
func (s AlertSet) Clone() AlertSet {
	c := make(AlertSet, len(s))
	for n := range s {
		c[n] = struct{}{}
	}
	return c
}

// Names returns the members sorted alphabetically
func (s AlertSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MonitorState is the only record persisted between invocations.
type MonitorState struct {
	// LastKnownHeight is the last observed counter value
	LastKnownHeight uint64
	// LastUpdatedAt is when LastKnownHeight last strictly increased.
	// The zero value means no observation has been made yet.
	LastUpdatedAt time.Time
	// AlertsSent lists thresholds notified during the current stall episode
	AlertsSent AlertSet
}

// DefaultState returns the first-run state
func DefaultState() MonitorState {
	return MonitorState{AlertsSent: AlertSet{}}
}

// HasUpdate reports whether LastUpdatedAt is set
func (s MonitorState) HasUpdate() bool {
	return !s.LastUpdatedAt.IsZero()
}

// Clone returns a copy that shares nothing with s
func (s MonitorState) Clone() MonitorState {
	s.AlertsSent = s.AlertsSent.Clone()
	return s
}

// ElapsedMinutes returns whole minutes since LastUpdatedAt, clamped at zero
// for clock skew. Returns 0 when LastUpdatedAt is not set.
func (s MonitorState) ElapsedMinutes(now time.Time) int64 {
	if !s.HasUpdate() {
		return 0
	}
	elapsed := now.Unix() - s.LastUpdatedAt.Unix()
	if elapsed < 0 {
		return 0
	}
	return elapsed / 60
}
