package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wemix/headwatch/internal/escalation"
)

// ErrCorrupt is returned when a persisted record cannot be decoded
var ErrCorrupt = errors.New("monitor state is corrupt")

// record is the persisted layout. Field names match the monitor_state.json
// files written by earlier deployments so they load without migration.
type record struct {
	LastKnownHeight *uint64         `json:"lastKnownHeight"`
	LastUpdatedAt   *int64          `json:"lastUpdatedAt"`
	AlertsSent      map[string]bool `json:"alertsSent"`
}

// Codec encodes MonitorState records. The configured threshold names are
// always written, so adding a threshold never drops history for existing ones.
type Codec struct {
	mu         sync.RWMutex
	thresholds []string
}

// NewCodec creates a codec for the given threshold names
func NewCodec(thresholdNames []string) *Codec {
	names := make([]string, len(thresholdNames))
	copy(names, thresholdNames)
	return &Codec{thresholds: names}
}

// NewCodecFor creates a codec for the given thresholds
func NewCodecFor(thresholds []escalation.Threshold) *Codec {
	return NewCodec(thresholdNames(thresholds))
}

// SetThresholds replaces the names written on encode, e.g. after a config reload
func (c *Codec) SetThresholds(thresholds []escalation.Threshold) {
	names := thresholdNames(thresholds)
	c.mu.Lock()
	c.thresholds = names
	c.mu.Unlock()
}

func thresholdNames(thresholds []escalation.Threshold) []string {
	names := make([]string, 0, len(thresholds))
	for _, t := range thresholds {
		names = append(names, t.Name)
	}
	return names
}

// Encode renders state as indented JSON
func (c *Codec) Encode(s escalation.MonitorState) ([]byte, error) {
	c.mu.RLock()
	names := c.thresholds
	c.mu.RUnlock()

	height := s.LastKnownHeight
	rec := record{
		LastKnownHeight: &height,
		AlertsSent:      make(map[string]bool, len(names)+s.AlertsSent.Len()),
	}
	if s.HasUpdate() {
		ts := s.LastUpdatedAt.Unix()
		rec.LastUpdatedAt = &ts
	}
	for _, name := range names {
		rec.AlertsSent[name] = false
	}
	for name := range s.AlertsSent {
		rec.AlertsSent[name] = true
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// Decode parses a record. Any malformed input wraps ErrCorrupt.
func (c *Codec) Decode(data []byte) (escalation.MonitorState, error) {
	var rec record

	// Unmarshal rejects trailing data after the record
	if err := json.Unmarshal(data, &rec); err != nil {
		return escalation.MonitorState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.LastKnownHeight == nil {
		return escalation.MonitorState{}, fmt.Errorf("%w: lastKnownHeight missing", ErrCorrupt)
	}

	s := escalation.DefaultState()
	s.LastKnownHeight = *rec.LastKnownHeight
	if rec.LastUpdatedAt != nil {
		s.LastUpdatedAt = time.Unix(*rec.LastUpdatedAt, 0)
	}
	for name, sent := range rec.AlertsSent {
		if sent {
			s.AlertsSent.Add(name)
		}
	}

	if s.AlertsSent.Len() > 0 && !s.HasUpdate() {
		return escalation.MonitorState{}, fmt.Errorf("%w: alerts recorded without lastUpdatedAt", ErrCorrupt)
	}

	return s, nil
}
