package progress

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsDone = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lbry_sync_phase_units_done",
		Help: "Units committed so far in the current phase invocation",
	}, []string{"event"})

	unitsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lbry_sync_phase_units_total",
		Help: "Total units planned for the current phase invocation",
	}, []string{"event"})
)

// MetricsSink mirrors every published progress event into Prometheus
// gauges, then forwards to an underlying Sink (typically the NATS
// message queue). Grounded on the teacher's promauto gauge pattern in
// internal/syncer/syncer.go.
type MetricsSink struct {
	next Sink
}

// NewMetricsSink wraps next with Prometheus mirroring.
func NewMetricsSink(next Sink) *MetricsSink {
	return &MetricsSink{next: next}
}

// Publish implements Sink.
func (m *MetricsSink) Publish(ctx context.Context, event string, payload map[string]any) error {
	if done, ok := payload["done"].(int); ok {
		unitsDone.WithLabelValues(event).Set(float64(done))
	}
	if total, ok := payload["total"].(int); ok {
		unitsTotal.WithLabelValues(event).Set(float64(total))
	}
	if steps, ok := payload["steps"].(int); ok {
		unitsTotal.WithLabelValues(event).Set(float64(steps))
	}
	if m.next == nil {
		return nil
	}
	return m.next.Publish(ctx, event, payload)
}
