package api

import (
	"time"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/runner"
)

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	Ready           bool       `json:"ready"`
	Cycles          uint64     `json:"cycles"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ObservedHeight  *uint64    `json:"observed_height"`
	LastKnownHeight uint64     `json:"last_known_height"`
	LastUpdatedAt   *time.Time `json:"last_updated_at,omitempty"`
	StalledMinutes  int64      `json:"stalled_minutes"`
	Level           int        `json:"level"`
	LevelName       string     `json:"level_name"`
	AlertsSent      []string   `json:"alerts_sent"`
	Pending         []string   `json:"pending"`
	LastEvents      []string   `json:"last_events"`
}

// buildStatus derives the response from the last cycle. Stall minutes are
// measured against now so the value keeps growing between cycles.
func buildStatus(status runner.Status, engine *escalation.Engine, now time.Time) StatusResponse {
	resp := StatusResponse{
		Cycles:     status.Cycles,
		AlertsSent: []string{},
		Pending:    []string{},
		LastEvents: []string{},
	}
	if !status.LastRunAt.IsZero() {
		at := status.LastRunAt
		resp.LastRunAt = &at
	}
	if status.LastError != nil {
		resp.LastError = status.LastError.Error()
	}

	st := escalation.DefaultState()
	if status.LastResult != nil {
		resp.Ready = true
		resp.ObservedHeight = status.LastResult.Observed
		st = status.LastResult.Next
		for _, ev := range status.LastResult.Events {
			resp.LastEvents = append(resp.LastEvents, ev.String())
		}
	}

	resp.LastKnownHeight = st.LastKnownHeight
	if st.HasUpdate() {
		at := st.LastUpdatedAt
		resp.LastUpdatedAt = &at
	}
	resp.StalledMinutes = st.ElapsedMinutes(now)
	resp.AlertsSent = append(resp.AlertsSent, st.AlertsSent.Names()...)

	if engine != nil {
		resp.Level = engine.Level(st)
		resp.LevelName = engine.LevelName(st)
		for _, t := range engine.Pending(st) {
			resp.Pending = append(resp.Pending, t.Name)
		}
	}
	return resp
}
