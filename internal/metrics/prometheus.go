// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the level list engine.
var (
	// Counters.
	LevelMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_level_mutations_total",
			Help: "Total number of level mutations by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	RecordActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_record_actions_total",
			Help: "Total number of record workflow actions by action and outcome",
		},
		[]string{"action", "status"},
	)

	VerifierAwardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "levellist_verifier_awards_total",
			Help: "Total number of verifier awards created",
		},
	)

	UserRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_user_recomputes_total",
			Help: "Total number of user point recomputes by trigger",
		},
		[]string{"trigger"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_cache_requests_total",
			Help: "Ordered list cache lookups by list and result (hit, miss, error)",
		},
		[]string{"list", "result"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_notifications_total",
			Help: "Notification deliveries by event kind and outcome",
		},
		[]string{"kind", "status"},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "levellist_reconcile_runs_total",
			Help: "Total number of reconciliation job runs",
		},
		[]string{"status"}, // success, failed
	)

	// Gauges.
	ListSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "levellist_list_size",
			Help: "Current number of levels per list",
		},
		[]string{"list"},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "levellist_reconcile_last_run_timestamp",
			Help: "Timestamp of the last reconciliation run",
		},
	)

	// Histograms.
	RecalculationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "levellist_recalculation_duration_seconds",
			Help:    "Duration of a list shift plus points recalculation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	ReconcileDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "levellist_reconcile_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)
)

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordLevelMutation records a level mutation and its outcome.
func RecordLevelMutation(operation string, err error) {
	LevelMutationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordRecordAction records a record workflow action and its outcome.
func RecordRecordAction(action string, err error) {
	RecordActionsTotal.WithLabelValues(action, status(err)).Inc()
}

// RecordVerifierAward counts a created verifier award.
func RecordVerifierAward() {
	VerifierAwardsTotal.Inc()
}

// RecordUserRecomputes counts recomputed users for a trigger.
func RecordUserRecomputes(trigger string, count int) {
	UserRecomputesTotal.WithLabelValues(trigger).Add(float64(count))
}

// RecordCacheHit counts a cache hit.
func RecordCacheHit(list string) {
	CacheRequestsTotal.WithLabelValues(list, "hit").Inc()
}

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss(list string) {
	CacheRequestsTotal.WithLabelValues(list, "miss").Inc()
}

// RecordCacheError counts a backend failure that fell back to the store.
func RecordCacheError(list string) {
	CacheRequestsTotal.WithLabelValues(list, "error").Inc()
}

// RecordNotification records a notification delivery and its outcome.
func RecordNotification(kind string, err error) {
	NotificationsTotal.WithLabelValues(kind, status(err)).Inc()
}

// SetListSize sets the current size of a list.
func SetListSize(list string, size int) {
	ListSize.WithLabelValues(list).Set(float64(size))
}

// ObserveRecalculation records how long a level mutation held its lists.
func ObserveRecalculation(operation string, d time.Duration) {
	RecalculationDurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordReconcileRun records a reconciliation run.
func RecordReconcileRun(err error, d time.Duration) {
	ReconcileRunsTotal.WithLabelValues(status(err)).Inc()
	ReconcileDurationSeconds.Observe(d.Seconds())
	ReconcileLastRunTimestamp.SetToCurrentTime()
}
