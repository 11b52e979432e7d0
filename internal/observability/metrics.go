package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for VaultAccountant.
type Metrics struct {
	// --- Engine ---
	ReportsApplied  *prometheus.CounterVec
	ReportsRejected *prometheus.CounterVec
	ReportDuration  *prometheus.HistogramVec
	FeeOwedTotal    *prometheus.CounterVec
	SkipsArmed      *prometheus.CounterVec
	SkipsConsumed   *prometheus.CounterVec
	AdminOpsApplied *prometheus.CounterVec
	AdminOpsDenied  *prometheus.CounterVec
	EngineSequence  prometheus.Gauge

	// --- Fee ledger ---
	FeesAccruedTotal *prometheus.CounterVec
	FeesSweptTotal   *prometheus.CounterVec
	FeeBalance       *prometheus.GaugeVec

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	ReportsStale          *prometheus.CounterVec

	// --- Channel & Backpressure ---
	ChannelSize     *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
	ProjectionDrops prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge
	SnapshotsWritten     prometheus.Counter

	// --- Projections ---
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		ReportsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_reports_applied_total",
			Help: "Strategy reports successfully processed",
		}, []string{"vault"}),

		ReportsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_reports_rejected_total",
			Help: "Strategy reports rejected (unauthorized, bound violation, dedup, stale)",
		}, []string{"vault", "reason"}),

		ReportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "va_report_duration_seconds",
			Help:    "Time to process a single strategy report",
			Buckets: latencyBuckets,
		}, []string{"vault"}),

		FeeOwedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_fee_owed_total",
			Help: "Cumulative fee owed across processed reports (asset units)",
		}, []string{"vault"}),

		SkipsArmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_healthcheck_skips_armed_total",
			Help: "One-shot health check bypasses armed",
		}, []string{"vault"}),

		SkipsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_healthcheck_skips_consumed_total",
			Help: "One-shot health check bypasses consumed by a report",
		}, []string{"vault"}),

		AdminOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_admin_ops_applied_total",
			Help: "Successful configuration, registry, role, and sweep operations",
		}, []string{"op"}),

		AdminOpsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_admin_ops_denied_total",
			Help: "Rejected configuration, registry, role, and sweep operations",
		}, []string{"op", "reason"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "va_engine_sequence",
			Help: "Current global audit sequence number",
		}),

		FeesAccruedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_fees_accrued_total",
			Help: "Fee-asset value credited to the engine by vault accruals",
		}, []string{"asset"}),

		FeesSweptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_fees_swept_total",
			Help: "Fee-asset value swept to the fee recipient",
		}, []string{"asset"}),

		FeeBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "va_fee_balance",
			Help: "Current engine fee balance per asset",
		}, []string{"asset"}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_idempotency_duplicates_total",
			Help: "Duplicate events caught",
		}, []string{"event_type"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "va_dedup_lru_size",
			Help: "Current dedup LRU occupancy",
		}),

		ReportsStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_reports_stale_total",
			Help: "Reports rejected for stale source sequence",
		}, []string{"vault"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "va_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "va_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "va_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "va_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "va_persist_events_written_total",
			Help: "Audit events written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "va_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "va_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "va_persist_last_sequence",
			Help: "Last persisted audit sequence",
		}),

		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "va_snapshots_written_total",
			Help: "Engine state snapshots written",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "va_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "va_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "va_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}
