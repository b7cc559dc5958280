package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name when none is configured
const DefaultJob = "headwatch"

// Push sends the collector's metrics to a Pushgateway. Used by one-shot runs
// that exit before a scrape could happen.
func Push(ctx context.Context, c *Collector, url, job string, grouping map[string]string) error {
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(url, job).Gatherer(c.GetRegistry())
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
