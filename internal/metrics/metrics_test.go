package metrics

import (
	"testing"
	"time"
)

func TestNew_StartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestZeroValue_SnapshotSafe(t *testing.T) {
	var m Metrics
	s := m.Snapshot()
	if s.Detection.Total != 0 {
		t.Errorf("expected 0 total detections, got %d", s.Detection.Total)
	}
}

func TestDetectionCounters(t *testing.T) {
	m := New()
	m.DetectionsTotal.Add(10)
	m.CandidatesFound.Add(25)
	m.SpansAfterReconcile.Add(18)
	m.ExternalAnalyzerRuns.Add(4)
	m.ExternalAnalyzerFail.Add(1)

	s := m.Snapshot()
	if s.Detection.Total != 10 {
		t.Errorf("Total: got %d, want 10", s.Detection.Total)
	}
	if s.Detection.Candidates != 25 {
		t.Errorf("Candidates: got %d, want 25", s.Detection.Candidates)
	}
	if s.Detection.SpansAfterReconcile != 18 {
		t.Errorf("SpansAfterReconcile: got %d, want 18", s.Detection.SpansAfterReconcile)
	}
	if s.Detection.ExternalAnalyzerRuns != 4 {
		t.Errorf("ExternalAnalyzerRuns: got %d, want 4", s.Detection.ExternalAnalyzerRuns)
	}
	if s.Detection.ExternalAnalyzerFail != 1 {
		t.Errorf("ExternalAnalyzerFail: got %d, want 1", s.Detection.ExternalAnalyzerFail)
	}
}

func TestStoreCounters(t *testing.T) {
	m := New()
	m.StoreReads.Add(3)
	m.StoreWrites.Add(2)
	m.MigrationRowsDone.Add(100)
	m.MigrationRowsTotal.Add(250)

	s := m.Snapshot()
	if s.Store.Reads != 3 {
		t.Errorf("Reads: got %d, want 3", s.Store.Reads)
	}
	if s.Store.Writes != 2 {
		t.Errorf("Writes: got %d, want 2", s.Store.Writes)
	}
	if s.Store.MigrationRowsDone != 100 {
		t.Errorf("MigrationRowsDone: got %d, want 100", s.Store.MigrationRowsDone)
	}
	if s.Store.MigrationRowsTotal != 250 {
		t.Errorf("MigrationRowsTotal: got %d, want 250", s.Store.MigrationRowsTotal)
	}
}

func TestConsentCounters(t *testing.T) {
	m := New()
	m.ConsentGrants.Add(5)
	m.ConsentRevokes.Add(1)
	m.ConsentDenials.Add(2)

	s := m.Snapshot()
	if s.Consent.Grants != 5 {
		t.Errorf("Grants: got %d, want 5", s.Consent.Grants)
	}
	if s.Consent.Revokes != 1 {
		t.Errorf("Revokes: got %d, want 1", s.Consent.Revokes)
	}
	if s.Consent.Denials != 2 {
		t.Errorf("Denials: got %d, want 2", s.Consent.Denials)
	}
}

func TestExportCounters(t *testing.T) {
	m := New()
	m.ExportsCompleted.Add(4)
	m.ExportsFailed.Add(1)

	s := m.Snapshot()
	if s.Export.Completed != 4 {
		t.Errorf("Completed: got %d, want 4", s.Export.Completed)
	}
	if s.Export.Failed != 1 {
		t.Errorf("Failed: got %d, want 1", s.Export.Failed)
	}
}

func TestRecordDetectLatency_SingleSample(t *testing.T) {
	m := New()
	m.RecordDetectLatency(100 * time.Millisecond)

	s := m.Snapshot()
	if s.Latency.DetectionMs.Count != 1 {
		t.Errorf("Count: got %d, want 1", s.Latency.DetectionMs.Count)
	}
	if s.Latency.DetectionMs.MinMs < 90 || s.Latency.DetectionMs.MinMs > 110 {
		t.Errorf("MinMs: got %f, want ~100", s.Latency.DetectionMs.MinMs)
	}
}

func TestRecordStoreLatency_MinMaxMean(t *testing.T) {
	m := New()
	m.RecordStoreLatency(50 * time.Millisecond)
	m.RecordStoreLatency(150 * time.Millisecond)
	m.RecordStoreLatency(100 * time.Millisecond)

	s := m.Snapshot()
	ls := s.Latency.StoreMs
	if ls.Count != 3 {
		t.Errorf("Count: got %d, want 3", ls.Count)
	}
	if ls.MinMs > 60 {
		t.Errorf("MinMs too high: %f", ls.MinMs)
	}
	if ls.MaxMs < 140 {
		t.Errorf("MaxMs too low: %f", ls.MaxMs)
	}
	if ls.MeanMs < 90 || ls.MeanMs > 110 {
		t.Errorf("MeanMs: got %f, want ~100", ls.MeanMs)
	}
}

func TestSnapshotLatency_EmptyIsZeroValue(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if s.Latency.DetectionMs.Count != 0 {
		t.Errorf("empty detection latency count should be 0")
	}
	if s.Latency.StoreMs.Count != 0 {
		t.Errorf("empty store latency count should be 0")
	}
}

func TestSnapshot_UptimePositive(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	s := m.Snapshot()
	if s.UptimeSecs <= 0 {
		t.Errorf("UptimeSecs should be positive, got %f", s.UptimeSecs)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{100.0, 100.0},
		{0.0, 0.0},
	}
	for _, c := range cases {
		got := round2(c.input)
		if got != c.want {
			t.Errorf("round2(%f) = %f, want %f", c.input, got, c.want)
		}
	}
}

func TestLatencyStats_Record(t *testing.T) {
	var s latencyStats
	s.record(10)
	s.record(20)
	s.record(15)

	snap := s.snapshot()
	if snap.Count != 3 {
		t.Errorf("Count: got %d, want 3", snap.Count)
	}
	if snap.MinMs != 10 {
		t.Errorf("MinMs: got %f, want 10", snap.MinMs)
	}
	if snap.MaxMs != 20 {
		t.Errorf("MaxMs: got %f, want 20", snap.MaxMs)
	}
	if snap.MeanMs != 15 {
		t.Errorf("MeanMs: got %f, want 15", snap.MeanMs)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s latencyStats
	snap := s.snapshot()
	if snap.Count != 0 || snap.MinMs != 0 || snap.MaxMs != 0 || snap.MeanMs != 0 {
		t.Errorf("empty stats snapshot should be zero, got %+v", snap)
	}
}
