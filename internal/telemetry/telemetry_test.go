package telemetry

import (
	"testing"
	"time"

	"github.com/procurelab/bidwise/config"
)

func TestGetMetricsReturnsIndependentCopy(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true})
	tele.RecordSearchEvent(SearchEvent{Source: "ChipMart", Duration: time.Second, Success: true})
	tele.RecordRunEvent(RunEvent{StartTime: time.Now().Add(-time.Second), EndTime: time.Now(), Success: true})

	m := tele.GetMetrics()
	if m.TotalRuns != 1 || m.SourceRequests["ChipMart"] != 1 {
		t.Fatalf("metrics = %+v", m)
	}

	// Mutating the snapshot must not leak back into the live counters.
	m.SourceRequests["ChipMart"] = 99
	m.TotalRuns = 99
	if got := tele.GetMetrics(); got.TotalRuns != 1 || got.SourceRequests["ChipMart"] != 1 {
		t.Fatalf("snapshot mutation leaked: %+v", got)
	}
}

func TestDisabledTelemetryRecordsNothing(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{})
	tele.RecordLLMEvent(LLMEvent{Model: "chat", InputTokens: 10, OutputTokens: 5})
	if m := tele.GetMetrics(); m.TotalTokens != 0 {
		t.Fatalf("disabled telemetry counted tokens: %+v", m)
	}
}
