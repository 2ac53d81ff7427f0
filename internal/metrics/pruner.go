package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prunerRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstate7000",
		Subsystem: "pruner",
		Name:      "run_total",
		Help:      "Count of pruning passes.",
	}, []string{"network", "mode", "status"})

	prunerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "pruner",
		Name:      "run_duration_seconds",
		Help:      "Duration of a pruning pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "mode", "status"})

	prunerHeights = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "pruner",
		Name:      "heights_pruned",
		Help:      "Heights processed per pruning pass.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"network", "mode"})
)

// Pruner tracks metrics for the pruning engine.
type Pruner struct {
	network string
	mode    string
}

// NewPruner constructs a Pruner with defaults.
func NewPruner(network, mode string) *Pruner {
	if network == "" {
		network = "unknown"
	}
	if mode == "" {
		mode = "unknown"
	}
	return &Pruner{network: network, mode: mode}
}

// ObservePrune records one pruning pass.
func (m Pruner) ObservePrune(err error, heights int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	prunerRunTotal.WithLabelValues(m.network, m.mode, status).Inc()
	prunerRunDuration.WithLabelValues(m.network, m.mode, status).
		Observe(time.Since(started).Seconds())
	prunerHeights.WithLabelValues(m.network, m.mode).Observe(float64(heights))
}
