package escalation

import (
	"errors"
	"fmt"
	"sort"
)

// Severity indicates how urgent a notification is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Threshold is a named stall duration at which an alert fires once per stall episode.
type Threshold struct {
	Name         string   `json:"name"`
	StallMinutes int      `json:"stall_minutes"`
	Severity     Severity `json:"severity"`
	// Message is a text/template rendered by the alerting formatter
	Message string `json:"message"`
}

// ErrNoThresholds is returned when an engine is built without thresholds
var ErrNoThresholds = errors.New("at least one threshold is required")

// DefaultThresholds returns the standard min20/min30/min60 escalation.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{
			Name:         "min20",
			StallMinutes: 20,
			Severity:     SeverityWarning,
			Message:      "WARNING: light client has not been updated for ~20 minutes. Currently at: {{.Height}}.",
		},
		{
			Name:         "min30",
			StallMinutes: 30,
			Severity:     SeverityError,
			Message:      "ALERT: light client has not been updated for ~30 minutes. Currently at: {{.Height}}.",
		},
		{
			Name:         "min60",
			StallMinutes: 60,
			Severity:     SeverityCritical,
			Message:      "CRITICAL: light client has not been updated for ~1 HOUR. Currently at: {{.Height}}.",
		},
	}
}

// ValidateThresholds checks names and durations without reordering anything.
func ValidateThresholds(thresholds []Threshold) error {
	if len(thresholds) == 0 {
		return ErrNoThresholds
	}

	seen := make(map[string]struct{}, len(thresholds))
	for i, t := range thresholds {
		if t.Name == "" {
			return fmt.Errorf("threshold %d: name is required", i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("threshold %q: duplicate name", t.Name)
		}
		seen[t.Name] = struct{}{}

		if t.StallMinutes <= 0 {
			return fmt.Errorf("threshold %q: stall minutes must be positive, got %d", t.Name, t.StallMinutes)
		}
	}

	return nil
}

// sortThresholds returns a copy ordered ascending by StallMinutes.
// Equal durations keep their declared order.
func sortThresholds(thresholds []Threshold) []Threshold {
	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StallMinutes < sorted[j].StallMinutes
	})
	return sorted
}
