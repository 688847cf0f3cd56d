package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionOutcome("done", "")
	m.SetState("idle")
	m.RecordRecording(time.Second, 10)
	m.RecordStage("decode", time.Millisecond, "")
	m.RecordHTTPRequest("GET", "/api/state", "200", time.Millisecond)
}

func TestRecordStageCountsFailures(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordStage("analyze", 2*time.Second, "ServiceError")
	m.RecordStage("analyze", time.Second, "")

	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("analyze", "ServiceError")); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
}

func TestSetStateIsExclusive(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetState("recording")
	m.SetState("analyzing")

	if got := testutil.ToFloat64(m.SessionState.WithLabelValues("analyzing")); got != 1 {
		t.Fatalf("expected analyzing=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionState.WithLabelValues("recording")); got != 0 {
		t.Fatalf("expected recording=0, got %v", got)
	}
}

func TestGatherExposesFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordSessionStarted()
	m.RecordRecording(3*time.Second, 4096)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}
	started, ok := byName["voxbrief_sessions_started_total"]
	if !ok {
		t.Fatal("expected sessions started family")
	}
	if v := started.GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Fatalf("expected 1 session, got %v", v)
	}
	hist, ok := byName["voxbrief_recording_duration_seconds"]
	if !ok {
		t.Fatal("expected recording duration family")
	}
	if c := hist.GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
		t.Fatalf("expected one observation, got %d", c)
	}
}
