package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"
)

func newTestSqliteStore(t *testing.T, key string) *DBStore {
	t.Helper()
	opts := Options{
		Backend: BackendSqlite,
		Path:    filepath.Join(t.TempDir(), "headwatch.db"),
		Key:     key,
	}
	store, err := NewDBStore(context.Background(), opts, NewCodec(defaultNames), logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDBStore_Sqlite(t *testing.T) {
	ctx := context.Background()
	store := newTestSqliteStore(t, "")

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.DefaultState(), s)

	err = store.Update(ctx, func(s escalation.MonitorState) (escalation.MonitorState, error) {
		s.LastKnownHeight = 42
		s.LastUpdatedAt = time.Unix(1_700_000_000, 0)
		s.AlertsSent.Add("min30")
		return s, nil
	})
	require.NoError(t, err)

	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s.LastKnownHeight)
	assert.Equal(t, int64(1_700_000_000), s.LastUpdatedAt.Unix())
	assert.Equal(t, []string{"min30"}, s.AlertsSent.Names())

	require.NoError(t, store.Save(ctx, escalation.DefaultState()))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.LastKnownHeight)
	assert.False(t, s.HasUpdate())
}

func TestDBStore_CorruptRow(t *testing.T) {
	ctx := context.Background()
	store := newTestSqliteStore(t, "corrupt")

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO monitor_state (key, value, updated_at) VALUES ($1, $2, $3)`, "corrupt", "{nope", 0)
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)

	err = store.Update(ctx, func(s escalation.MonitorState) (escalation.MonitorState, error) {
		return s, nil
	})
	assert.ErrorIs(t, err, ErrCorrupt)

	store.resetOnCorrupt = true
	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.DefaultState(), s)
}

func TestDBStore_SchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	opts := Options{Backend: BackendSqlite, Path: path}

	first, err := NewDBStore(ctx, opts, NewCodec(defaultNames), logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, escalation.MonitorState{LastKnownHeight: 9, AlertsSent: escalation.AlertSet{}}))
	require.NoError(t, first.Close())

	second, err := NewDBStore(ctx, opts, NewCodec(defaultNames), logger.NewTestLogger())
	require.NoError(t, err)
	defer second.Close()

	s, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), s.LastKnownHeight)
}

func TestNewDBStore_Validation(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	_, err := NewDBStore(ctx, Options{Backend: BackendSqlite}, NewCodec(defaultNames), log)
	assert.Error(t, err)

	_, err = NewDBStore(ctx, Options{Backend: BackendPgsql}, NewCodec(defaultNames), log)
	assert.Error(t, err)

	_, err = NewDBStore(ctx, Options{Backend: "mysql"}, NewCodec(defaultNames), log)
	assert.Error(t, err)
}
