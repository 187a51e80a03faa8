package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed counts CKB blocks handled by the watcher
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ckb_bridge_blocks_processed_total",
			Help: "Total number of CKB blocks processed",
		},
	)

	// LastProcessedBlock tracks the ledger cursor height
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ckb_bridge_last_processed_block",
			Help: "Height of the last processed CKB block",
		},
	)

	// EventsDetected counts classified bridge transactions
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckb_bridge_events_detected_total",
			Help: "Total number of bridge events detected on CKB",
		},
		[]string{"event_type"},
	)

	// BurnsConfirmed counts burns promoted to confirmed, by origin chain
	BurnsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckb_bridge_burns_confirmed_total",
			Help: "Total number of burns that reached confirmation depth",
		},
		[]string{"chain"},
	)

	// ForksDetected counts parent hash mismatches
	ForksDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ckb_bridge_forks_detected_total",
			Help: "Total number of CKB forks detected",
		},
	)

	// MintBatches counts mint batches by outcome
	MintBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckb_bridge_mint_batches_total",
			Help: "Total number of mint batches by outcome",
		},
		[]string{"outcome"},
	)

	// MintBatchDuration tracks mint batch processing time
	MintBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ckb_bridge_mint_batch_duration_seconds",
			Help:    "Mint batch processing duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// PendingMints tracks the number of pending mint records
	PendingMints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ckb_bridge_pending_mints",
			Help: "Number of pending mint records",
		},
	)

	// TransactionsSent counts transactions submitted to CKB
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckb_bridge_transactions_sent_total",
			Help: "Total number of transactions sent to CKB",
		},
		[]string{"kind", "status"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckb_bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
