package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name of a run.
const PushJob = "raincast"

// Push sends the current value of every metric to the Pushgateway at url,
// grouped by run id. Batch runs end before any scrape, so this is how their
// metrics reach Prometheus.
func Push(ctx context.Context, url, runID string, m *Metrics) error {
	p := push.New(url, PushJob).Grouping("run_id", runID)
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
