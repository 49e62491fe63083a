package runlog

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteSink_LogPhaseAndLLMCall(t *testing.T) {
	sink, err := NewSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite sink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	start := time.Now()
	end := start.Add(time.Second)
	if err := sink.LogPhase(ctx, "run-1", "mapper", start, end); err != nil {
		t.Fatalf("LogPhase failed: %v", err)
	}
	if err := sink.LogLLMCall(ctx, LLMCallRecord{RunID: "run-1", Phase: "mapper", Src: "run.sh", PromptTokens: 42, LatencyMs: 120, Resolved: true}); err != nil {
		t.Fatalf("LogLLMCall failed: %v", err)
	}
}

func TestNoopSink_NeverErrors(t *testing.T) {
	var sink Sink = NoopSink{}
	if err := sink.LogPhase(context.Background(), "r", "p", time.Now(), time.Now()); err != nil {
		t.Fatalf("noop LogPhase should never error: %v", err)
	}
	if err := sink.LogLLMCall(context.Background(), LLMCallRecord{}); err != nil {
		t.Fatalf("noop LogLLMCall should never error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("noop Close should never error: %v", err)
	}
}
