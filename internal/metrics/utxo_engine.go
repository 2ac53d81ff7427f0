package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/chainstate7000/internal/model"
)

var (
	engineApplyTxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_engine",
		Name:      "apply_tx_total",
		Help:      "Count of transactions applied through engine sessions.",
	}, []string{"network", "direction", "status"})

	engineApplyTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_engine",
		Name:      "apply_tx_duration_seconds",
		Help:      "Duration of applying one transaction to the UTXO set.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"network", "direction", "status"})

	engineSpendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_engine",
		Name:      "spend_total",
		Help:      "Count of individual output spends.",
	}, []string{"network", "status"})

	engineMintTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_engine",
		Name:      "mint_total",
		Help:      "Count of transaction mints.",
	}, []string{"network", "status"})

	engineMintOutputs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstate7000",
		Subsystem: "utxo_engine",
		Name:      "mint_outputs",
		Help:      "Outputs created per minted transaction.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"network"})
)

// UtxoEngine tracks metrics for the mint/spend state machine.
type UtxoEngine struct {
	network string
}

// NewUtxoEngine constructs a UtxoEngine with defaults.
func NewUtxoEngine(network string) *UtxoEngine {
	if network == "" {
		network = "unknown"
	}
	return &UtxoEngine{network: network}
}

// ObserveApplyTx records one transaction pass through a session.
func (m UtxoEngine) ObserveApplyTx(err error, direction model.Direction, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	engineApplyTxTotal.WithLabelValues(m.network, direction.String(), status).Inc()
	engineApplyTxDuration.WithLabelValues(m.network, direction.String(), status).
		Observe(time.Since(started).Seconds())
}

// ObserveSpend records one output spend attempt.
func (m UtxoEngine) ObserveSpend(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	engineSpendTotal.WithLabelValues(m.network, status).Inc()
}

// ObserveMint records one transaction mint attempt.
func (m UtxoEngine) ObserveMint(err error, outputs int) {
	status := "success"
	if err != nil {
		status = "error"
	}
	engineMintTotal.WithLabelValues(m.network, status).Inc()
	if err == nil {
		engineMintOutputs.WithLabelValues(m.network).Observe(float64(outputs))
	}
}
