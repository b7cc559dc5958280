// Package state persists the escalation state between invocations.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"
)

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSqlite = "sqlite"
	BackendPgsql  = "pgsql"
	BackendMemory = "memory"
)

const (
	// DefaultPath is the file backend location used by earlier deployments
	DefaultPath = "monitor_state.json"

	// DefaultKey identifies the record in SQL backends
	DefaultKey = "headwatch"

	// DefaultLockTimeout bounds how long Update waits for exclusive access
	DefaultLockTimeout = 30 * time.Second
)

// UpdateFunc receives the current state and returns the state to persist.
// Returning an error aborts the update without writing anything.
type UpdateFunc func(escalation.MonitorState) (escalation.MonitorState, error)

// Store loads and persists MonitorState.
type Store interface {
	// Load returns the persisted state, or the default state when none exists
	Load(ctx context.Context) (escalation.MonitorState, error)

	// Save overwrites the persisted state
	Save(ctx context.Context, s escalation.MonitorState) error

	// Update runs a load-modify-save cycle with exclusive access held throughout
	Update(ctx context.Context, fn UpdateFunc) error

	// Close releases resources held by the store
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend        string
	Path           string
	DSN            string
	Key            string
	ResetOnCorrupt bool
	LockTimeout    time.Duration
}

// Open creates the store selected by opts.Backend
func Open(ctx context.Context, opts Options, codec *Codec, log *logger.Logger) (Store, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}

	switch opts.Backend {
	case "", BackendFile:
		path := opts.Path
		if path == "" {
			path = DefaultPath
		}
		return NewFileStore(path, codec, opts, log), nil
	case BackendSqlite, BackendPgsql:
		return NewDBStore(ctx, opts, codec, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend: %s", opts.Backend)
	}
}

// decodeOrReset applies the corrupt-record policy shared by all backends
func decodeOrReset(codec *Codec, data []byte, reset bool, log *logger.Logger) (escalation.MonitorState, error) {
	s, err := codec.Decode(data)
	if err == nil {
		return s, nil
	}
	if reset && errors.Is(err, ErrCorrupt) {
		log.Warn("discarding corrupt monitor state", zap.Error(err))
		return escalation.DefaultState(), nil
	}
	return escalation.MonitorState{}, err
}
