package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	TransactionsApplied *prometheus.CounterVec
	TransactionErrors   *prometheus.CounterVec
	TransactionAmount   prometheus.Histogram
	LedgerConflicts     prometheus.Counter

	// Batch metrics
	BatchesFinished     *prometheus.CounterVec
	BatchItemsProcessed *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	BatchWorkersBusy    prometheus.Gauge

	// Compensation metrics
	CompensationRuns  *prometheus.CounterVec
	ReversalsExecuted prometheus.Counter

	// Cache metrics
	ReferenceCacheHits   prometheus.Counter
	ReferenceCacheMisses prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		TransactionsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payrolld_transactions_applied_total",
				Help: "Total transactions applied by type and status",
			},
			[]string{"type", "status"},
		),
		TransactionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payrolld_transaction_errors_total",
				Help: "Total transaction failures by type and error code",
			},
			[]string{"type", "code"},
		),
		TransactionAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payrolld_transaction_amount",
			Help:    "Transaction amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		LedgerConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payrolld_ledger_version_conflicts_total",
			Help: "Total optimistic-lock version conflicts observed",
		}),

		BatchesFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payrolld_batches_finished_total",
				Help: "Total payroll batches finished by terminal status",
			},
			[]string{"status"},
		),
		BatchItemsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payrolld_batch_items_processed_total",
				Help: "Total batch items processed by outcome",
			},
			[]string{"status"},
		),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payrolld_batch_duration_seconds",
			Help:    "Duration of payroll batch runs",
			Buckets: prometheus.DefBuckets,
		}),
		BatchWorkersBusy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "payrolld_batch_workers_busy",
			Help: "Batch item workers currently executing",
		}),

		CompensationRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payrolld_compensation_runs_total",
				Help: "Total compensation saga runs by outcome",
			},
			[]string{"outcome"},
		),
		ReversalsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payrolld_reversals_executed_total",
			Help: "Total reversal transactions executed",
		}),

		ReferenceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payrolld_reference_cache_hits_total",
			Help: "Total idempotency reference cache hits",
		}),
		ReferenceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payrolld_reference_cache_misses_total",
			Help: "Total idempotency reference cache misses",
		}),
	}
}
