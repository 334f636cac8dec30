package metrics

import (
	"testing"
	"time"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpLLMStream, 100*time.Millisecond)
	c.RecordTiming(OpLLMStream, 300*time.Millisecond)
	c.RecordRetry(OpLLMStream)
	c.RecordFailure(OpLLMStream)

	snap := c.Snapshot()
	if snap.LLMStream == nil {
		t.Fatal("expected llm stream stats")
	}
	s := snap.LLMStream
	if s.Count != 2 || s.Failures != 1 || s.Retries != 1 {
		t.Errorf("count/failures/retries = %d/%d/%d", s.Count, s.Failures, s.Retries)
	}
	if s.MinTimeMs != 100 || s.MaxTimeMs != 300 {
		t.Errorf("min/max = %d/%d", s.MinTimeMs, s.MaxTimeMs)
	}
	if s.AvgTimeMs != 200 {
		t.Errorf("avg = %v", s.AvgTimeMs)
	}
	if snap.Upload != nil {
		t.Error("upload stats should be nil without data")
	}
}

func TestCollectorFailureOnly(t *testing.T) {
	c := NewCollector()
	c.RecordFailure(OpUpload)

	snap := c.Snapshot()
	if snap.Upload == nil {
		t.Fatal("failure-only operation should still snapshot")
	}
	if snap.Upload.Failures != 1 || snap.Upload.Count != 0 {
		t.Errorf("failures/count = %d/%d", snap.Upload.Failures, snap.Upload.Count)
	}
	if snap.Upload.MinTimeMs != 0 {
		t.Errorf("min should stay zero, got %d", snap.Upload.MinTimeMs)
	}
}

func TestCollectorUptime(t *testing.T) {
	c := NewCollector()
	if c.Snapshot().UptimeSeconds < 0 {
		t.Error("uptime should not be negative")
	}
}
