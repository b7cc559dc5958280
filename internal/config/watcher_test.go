package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/pkg/logger"
)

func waitUpdate(t *testing.T, w *Watcher) Update {
	t.Helper()
	select {
	case u := <-w.Updates():
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config update")
		return Update{}
	}
}

func TestWatcher_Reload(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "headwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o600))

	loader := NewLoader(path, nil)
	_, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, logger.NewTestLogger())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o600))
	u := waitUpdate(t, w)
	require.NoError(t, u.Error)
	assert.Equal(t, path, u.Path)
	assert.Equal(t, "debug", u.Config.Log.Level)

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"shouty\"\n"), 0o600))
	u = waitUpdate(t, w)
	assert.ErrorIs(t, u.Error, ErrInvalid)
	assert.Nil(t, u.Config)

	// replaced by rename, as editors and WriteFile do
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	require.NoError(t, WriteFile(cfg, path, true))
	u = waitUpdate(t, w)
	require.NoError(t, u.Error)
	assert.Equal(t, "warn", u.Config.Log.Level)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "headwatch.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	loader := NewLoader(path, nil)
	_, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, logger.NewTestLogger())
	require.NoError(t, err)
	w.Start(context.Background())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	select {
	case u := <-w.Updates():
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(600 * time.Millisecond):
	}

	w.Stop()
	w.Stop()
}

func TestNewWatcher_NoFile(t *testing.T) {
	_, err := NewWatcher(NewLoader("", nil), logger.NewTestLogger())
	assert.Error(t, err)
}
