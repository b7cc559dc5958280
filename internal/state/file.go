package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"
)

// lockRetryInterval is how often a busy lock is retried
const lockRetryInterval = 100 * time.Millisecond

// FileStore keeps the state in a JSON file.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers never see a partial record. Update additionally
// holds an advisory lock on "<path>.lock" for the whole cycle.
type FileStore struct {
	path           string
	codec          *Codec
	resetOnCorrupt bool
	lockTimeout    time.Duration
	logger         *logger.Logger
}

// NewFileStore creates a file-backed store
func NewFileStore(path string, codec *Codec, opts Options, log *logger.Logger) *FileStore {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &FileStore{
		path:           path,
		codec:          codec,
		resetOnCorrupt: opts.ResetOnCorrupt,
		lockTimeout:    timeout,
		logger:         log,
	}
}

// Path returns the state file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields the default state.
func (f *FileStore) Load(ctx context.Context) (escalation.MonitorState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return escalation.DefaultState(), nil
	}
	if err != nil {
		return escalation.MonitorState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	return decodeOrReset(f.codec, data, f.resetOnCorrupt, f.logger)
}

// Save writes the state file atomically
func (f *FileStore) Save(ctx context.Context, s escalation.MonitorState) error {
	data, err := f.codec.Encode(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to chmod state file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Update locks the state file, applies fn and persists its result
func (f *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	lockCtx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()

	unlock, err := acquireLock(lockCtx, f.path+".lock")
	if err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			f.logger.Warn("failed to release state lock", zap.Error(err))
		}
	}()

	current, err := f.Load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	return f.Save(ctx, next)
}

// Backup copies the current state file next to it with a timestamp suffix
// and returns the copy's path. It returns "" when there is no file yet.
func (f *FileStore) Backup() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state file: %w", err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak", f.path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write state backup: %w", err)
	}

	f.logger.Info("state backup created", zap.String("path", backupPath))
	return backupPath, nil
}

// Close is a no-op for file stores
func (f *FileStore) Close() error {
	return nil
}
