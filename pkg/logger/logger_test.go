package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "console logs", opts: Options{Format: "console", TimeFormat: "kitchen"}},
		{name: "json logs", opts: Options{Format: "json", TimeFormat: "rfc3339"}},
		{name: "logs disabled", opts: Options{Disabled: true, TimeFormat: "rfc3339nano"}},
		{name: "debug level", opts: Options{Level: "debug", TimeFormat: "iso8601"}},
		{name: "unknown time format uses default", opts: Options{TimeFormat: "unknown"}},
		{name: "invalid level", opts: Options{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)

			// These should not panic
			log.Info("test info", zap.String("key", "value"))
			log.Debug("test debug")
			log.Warn("test warn")
			log.Error("test error")
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, err := New(Options{Level: "warn"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestWithAndNamed(t *testing.T) {
	log := NewTestLoggerWithT(t)

	child := log.With(zap.String("component", "test"))
	require.NotNil(t, child)
	child.Info("child message")

	named := log.Named("runner")
	require.NotNil(t, named)
	named.Info("named message")
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()
	require.NotNil(t, log)
	log.Info("discarded")
}
