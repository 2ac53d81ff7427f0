// Package metrics exposes Prometheus instrumentation for the chain-state
// services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

var (
	workerStepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstate7000",
		Subsystem: "chain_worker",
		Name:      "step_total",
		Help:      "Count of replay steps executed.",
	}, []string{"network", "direction", "status"})

	workerStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "chain_worker",
		Name:      "step_duration_seconds",
		Help:      "Duration of one replay step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "direction", "status"})

	workerStepTxs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "chain_worker",
		Name:      "step_txs",
		Help:      "Transactions replayed per step.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"network", "direction"})

	workerTipHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstate7000",
		Subsystem: "chain_worker",
		Name:      "tip_height",
		Help:      "Height of the validated chain tip.",
	}, []string{"network"})

	utxoUnspentTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_set",
		Name:      "unspent_tx_count",
		Help:      "Transactions with at least one unspent output.",
	}, []string{"network"})

	utxoUnspentOutputs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_set",
		Name:      "unspent_output_count",
		Help:      "Unspent outputs in the set.",
	}, []string{"network"})

	utxoTotalTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_set",
		Name:      "total_tx_count",
		Help:      "Transactions processed onto the current chain.",
	}, []string{"network"})
)

// ChainWorker tracks metrics for the replay worker.
type ChainWorker struct {
	network string
}

// NewChainWorker constructs a ChainWorker with defaults.
func NewChainWorker(network string) *ChainWorker {
	if network == "" {
		network = "unknown"
	}
	return &ChainWorker{network: network}
}

// ObserveStep records a replay step outcome, duration and size.
func (m ChainWorker) ObserveStep(err error, direction model.Direction, txs int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	workerStepTotal.WithLabelValues(m.network, direction.String(), status).Inc()
	workerStepDuration.WithLabelValues(m.network, direction.String(), status).
		Observe(time.Since(started).Seconds())
	workerStepTxs.WithLabelValues(m.network, direction.String()).Observe(float64(txs))
}

// ObserveTip records the validated tip height.
func (m ChainWorker) ObserveTip(height int32) {
	workerTipHeight.WithLabelValues(m.network).Set(float64(height))
}

// ObserveCounters exports the UTXO set counters.
func (m ChainWorker) ObserveCounters(counters model.Counters) {
	utxoUnspentTxs.WithLabelValues(m.network).Set(float64(counters.UnspentTxCount))
	utxoUnspentOutputs.WithLabelValues(m.network).Set(float64(counters.UnspentOutputCount))
	utxoTotalTxs.WithLabelValues(m.network).Set(float64(counters.TotalTxCount))
}
