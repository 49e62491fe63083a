package config

import "testing"

func TestDefault_SetsSaneBudget(t *testing.T) {
	cfg := Default()
	if cfg.Budget.MaxToolCalls != 100 || cfg.Budget.MaxLatencyMs != 60_000 {
		t.Fatalf("unexpected default budget: %+v", cfg.Budget)
	}
	if cfg.Budget.WorklistCap != 200 {
		t.Fatalf("expected worklist cap 200, got %d", cfg.Budget.WorklistCap)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Fatalf("expected sqlite default storage, got %q", cfg.Storage.Type)
	}
}

func TestLoad_MissingExplicitFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir + "/does-not-exist.yaml")
	if err == nil {
		t.Fatalf("expected an explicit config file path to error when absent")
	}
	_ = cfg
}

func TestApplyEnvOverrides_MaxToolCalls(t *testing.T) {
	t.Setenv("MAX_TOOL_CALLS", "7")
	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Budget.MaxToolCalls != 7 {
		t.Fatalf("expected MAX_TOOL_CALLS override to apply, got %d", cfg.Budget.MaxToolCalls)
	}
}

func TestToBudget_CopiesFields(t *testing.T) {
	b := BudgetConfig{MaxToolCalls: 5, MaxLatencyMs: 10, MaxLoops: 2, MaxFiles: 3}.ToBudget()
	if b.MaxToolCalls != 5 || b.MaxLatencyMs != 10 || b.MaxLoops != 2 || b.MaxFiles != 3 {
		t.Fatalf("unexpected conversion: %+v", b)
	}
}
