package cli

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/internal/config"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"
)

func TestRunWatch_ReloadsThresholds(t *testing.T) {
	f := newFixture(t)
	f.cfg.Schedule.Interval = config.Duration(50 * time.Millisecond)
	f.writeConfig(t)
	f.seedState(t, escalation.MonitorState{
		LastKnownHeight: 42,
		LastUpdatedAt:   time.Now().Add(-10 * time.Minute),
		AlertsSent:      escalation.AlertSet{},
	})

	loader := config.NewLoader(f.configPath, nil)
	cfg, err := loader.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, cfg, loader, logger.NewTestLogger(), true)
	}()

	// no default threshold is due after ten minutes
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, f.hook.received())

	f.cfg.Thresholds = append([]config.ThresholdConfig{{
		Name:     "min5",
		Minutes:  5,
		Severity: "info",
		Message:  "EARLY {{.Height}}",
	}}, f.cfg.Thresholds...)
	f.cfg.Thresholds = append(f.cfg.Thresholds, config.ThresholdConfig{
		Name:     "min90",
		Minutes:  90,
		Severity: "critical",
		Message:  "LATE {{.Height}}",
	})
	f.writeConfig(t)

	require.Eventually(t, func() bool {
		for _, body := range f.hook.received() {
			if strings.Contains(body, "EARLY 42") {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	// thresholds added by the reload are written to the record before they fire
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(f.statePath)
		return err == nil && strings.Contains(string(data), `"min90": false`)
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Len(t, f.hook.received(), 1, "the reloaded threshold fires once")
}

func TestRestartRequired(t *testing.T) {
	base := config.DefaultConfig()

	same := config.DefaultConfig()
	same.Thresholds[0].Minutes = 15
	same.Alerting.ResolvedMessage = "back at {{.Height}}"
	assert.Empty(t, restartRequired(base, same))

	changed := config.DefaultConfig()
	changed.Probe.RPCURL = "https://fullnode.mainnet.sui.io:443"
	changed.Schedule.Cron = "* * * * *"
	changed.Alerting.NotifyProbeErrors = false
	assert.Equal(t, []string{"probe", "schedule", "alerting.notify_probe_errors"}, restartRequired(base, changed))
}
