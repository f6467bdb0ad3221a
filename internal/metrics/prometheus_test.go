package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLevelMutation(t *testing.T) {
	// Reset the counter before test
	LevelMutationsTotal.Reset()

	RecordLevelMutation("add", nil)
	RecordLevelMutation("add", nil)
	RecordLevelMutation("move", errors.New("boom"))

	count := testutil.ToFloat64(LevelMutationsTotal.WithLabelValues("add", "success"))
	if count != 2 {
		t.Errorf("Expected add success count = 2, got %f", count)
	}

	count = testutil.ToFloat64(LevelMutationsTotal.WithLabelValues("move", "failed"))
	if count != 1 {
		t.Errorf("Expected move failed count = 1, got %f", count)
	}
}

func TestRecordRecordAction(t *testing.T) {
	RecordActionsTotal.Reset()

	RecordRecordAction("approve", nil)

	count := testutil.ToFloat64(RecordActionsTotal.WithLabelValues("approve", "success"))
	if count != 1 {
		t.Errorf("Expected approve count = 1, got %f", count)
	}
}

func TestRecordUserRecomputes(t *testing.T) {
	UserRecomputesTotal.Reset()

	RecordUserRecomputes("list_change", 3)
	RecordUserRecomputes("list_change", 2)

	count := testutil.ToFloat64(UserRecomputesTotal.WithLabelValues("list_change"))
	if count != 5 {
		t.Errorf("Expected 5 recomputes, got %f", count)
	}
}

func TestCacheCounters(t *testing.T) {
	CacheRequestsTotal.Reset()

	RecordCacheMiss("main")
	RecordCacheHit("main")
	RecordCacheHit("main")
	RecordCacheError("legacy")

	if got := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("main", "hit")); got != 2 {
		t.Errorf("Expected 2 hits, got %f", got)
	}
	if got := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("main", "miss")); got != 1 {
		t.Errorf("Expected 1 miss, got %f", got)
	}
	if got := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("legacy", "error")); got != 1 {
		t.Errorf("Expected 1 error, got %f", got)
	}
}

func TestSetListSize(t *testing.T) {
	ListSize.Reset()

	SetListSize("main", 150)
	SetListSize("main", 151)

	if got := testutil.ToFloat64(ListSize.WithLabelValues("main")); got != 151 {
		t.Errorf("Expected list size 151, got %f", got)
	}
}

func TestRecordReconcileRun(t *testing.T) {
	ReconcileRunsTotal.Reset()

	RecordReconcileRun(nil, 2*time.Second)

	if got := testutil.ToFloat64(ReconcileRunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful run, got %f", got)
	}
	if got := testutil.ToFloat64(ReconcileLastRunTimestamp); got == 0 {
		t.Error("Expected last run timestamp to be set")
	}
}

func TestMetricsRegistered(t *testing.T) {
	collectors := []prometheus.Collector{
		LevelMutationsTotal,
		RecordActionsTotal,
		VerifierAwardsTotal,
		UserRecomputesTotal,
		CacheRequestsTotal,
		NotificationsTotal,
		ReconcileRunsTotal,
		ListSize,
		ReconcileLastRunTimestamp,
		RecalculationDurationSeconds,
		ReconcileDurationSeconds,
	}

	for _, c := range collectors {
		if err := prometheus.Register(c); err == nil {
			t.Errorf("Expected collector to be registered already")
		}
	}
}
