package resolver

import (
	"context"
	"testing"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
)

func disabledClient() *llm.Client {
	return llm.New(context.Background(), llm.Config{}, nil)
}

func TestResolve_VariableIndirectionBash(t *testing.T) {
	allow := map[string]bool{"run.sh": true, "lib/load.sh": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	batch := models.ObservationBatch{
		EnvVars: []models.VariableAssignment{
			{ScopePath: "run.sh", Name: "BASE", Value: "./lib", Precedence: 10},
			{ScopePath: "run.sh", Name: "NAME", Value: "load.sh", Precedence: 10},
			{ScopePath: "run.sh", Name: "TARGET", Value: "$BASE/$NAME", Precedence: 10},
		},
		CallSites: []models.CallSite{
			{Src: "run.sh", RawTarget: "$TARGET", CommandText: `"$TARGET" "$TARGET"`, Kind: models.KindCall, Dynamic: true, Confidence: 0.5},
		},
	}
	res := m.Resolve(context.Background(), batch, models.NewGraph(), nil)

	if len(res.Edges) != 1 {
		t.Fatalf("want 1 edge, got %d: %+v", len(res.Edges), res.Edges)
	}
	e := res.Edges[0]
	if e.Src != "run.sh" || e.Dst != "lib/load.sh" || !e.Dynamic || !e.Resolved {
		t.Fatalf("unexpected edge: %+v", e)
	}
	if e.Reason != "local var substitution" {
		t.Fatalf("expected reason to mention local var substitution, got %q", e.Reason)
	}
}

func TestResolve_InterpreterHopBashToPython(t *testing.T) {
	allow := map[string]bool{"run.sh": true, "tools/worker.py": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	batch := models.ObservationBatch{
		EnvVars: []models.VariableAssignment{
			{ScopePath: "run.sh", Name: "TARGET", Value: "./tools/worker.py", Precedence: 10},
			{ScopePath: "run.sh", Name: "INTERP", Value: "python", Precedence: 10},
		},
		CallSites: []models.CallSite{
			{Src: "run.sh", RawTarget: "$TARGET", CommandText: `$INTERP "$TARGET"`, Kind: models.KindCall, Dynamic: true, Confidence: 0.5},
		},
	}
	res := m.Resolve(context.Background(), batch, models.NewGraph(), nil)
	if len(res.Edges) != 1 || res.Edges[0].Dst != "tools/worker.py" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResolve_UnresolvedWhenVariableUnknown(t *testing.T) {
	allow := map[string]bool{"run.sh": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	batch := models.ObservationBatch{
		CallSites: []models.CallSite{
			{Src: "run.sh", RawTarget: "$UNKNOWN/foo.sh", CommandText: "$UNKNOWN/foo.sh", Kind: models.KindCall, Dynamic: true, Confidence: 0.5},
		},
	}
	res := m.Resolve(context.Background(), batch, models.NewGraph(), nil)
	if len(res.Edges) != 0 {
		t.Fatalf("want no edges, got %+v", res.Edges)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0].Reason != "no-targets-from-LLM" {
		t.Fatalf("unexpected unresolved: %+v", res.Unresolved)
	}
	if res.Unresolved[0].RawTarget != "$UNKNOWN/foo.sh" {
		t.Fatalf("unexpected raw target: %+v", res.Unresolved[0])
	}
}

func TestResolve_CarriesOverBaselineStaticEdgeWithAcceptedPrefix(t *testing.T) {
	allow := map[string]bool{"run.sh": true, "utils/prep.sh": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	baseline := models.NewGraph()
	baseline.Edges = []models.Edge{
		{Src: "run.sh", Dst: "utils/prep.sh", Kind: models.KindCall, Command: "./utils/prep.sh", Resolved: true, Confidence: 0.9, Source: models.EdgeFromStatic},
	}
	res := m.Resolve(context.Background(), models.ObservationBatch{}, baseline, nil)
	if len(res.Edges) != 1 || res.Edges[0].Dst != "utils/prep.sh" {
		t.Fatalf("expected baseline edge to carry over, got %+v", res.Edges)
	}
}

func TestResolve_DropsBaselineEdgeWhenDestinationNotInAllowList(t *testing.T) {
	allow := map[string]bool{"run.sh": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	baseline := models.NewGraph()
	baseline.Edges = []models.Edge{
		{Src: "run.sh", Dst: "nonexistent.sh", Kind: models.KindCall, Command: "./nonexistent.sh", Resolved: true, Source: models.EdgeFromStatic},
	}
	res := m.Resolve(context.Background(), models.ObservationBatch{}, baseline, nil)
	if len(res.Edges) != 0 {
		t.Fatalf("expected baseline edge to be dropped, got %+v", res.Edges)
	}
}

func TestResolve_NonDynamicCallSiteAlreadyCoveredByBaselineIsNotReResolved(t *testing.T) {
	allow := map[string]bool{"run.sh": true, "helper": true}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{MaxToolCalls: 10})

	baseline := models.NewGraph()
	baseline.Edges = []models.Edge{
		{Src: "run.sh", Dst: "helper", Kind: models.KindCall, Command: "invoke helper", Resolved: true, Source: models.EdgeFromStatic},
	}
	batch := models.ObservationBatch{
		CallSites: []models.CallSite{
			{Src: "run.sh", RawTarget: "helper", CommandText: "invoke helper", Kind: models.KindCall, Dynamic: false, Confidence: 0.5},
		},
	}
	res := m.Resolve(context.Background(), batch, baseline, nil)
	if len(res.Edges) != 0 {
		t.Fatalf("expected the baseline's rejection of this call site (no accepted prefix or script-extension suffix) to stick, got %+v", res.Edges)
	}
}

func TestEnvFor_OneHopDotSourceFillsMissingOnly(t *testing.T) {
	allow := map[string]bool{}
	m := New(canon.New(false), disabledClient(), allow, &models.Budget{})

	all := []models.VariableAssignment{
		{ScopePath: "run.sh", Name: "BASE", Value: "local-value", Precedence: 10},
		{ScopePath: "lib/common.sh", Name: "BASE", Value: "imported-value", Precedence: 10},
		{ScopePath: "lib/common.sh", Name: "EXTRA", Value: "extra-value", Precedence: 10},
	}
	env := m.envFor("run.sh", all, map[string]string{"run.sh": "lib/common.sh"})

	base, _ := lookupEnv(env, "BASE")
	extra, _ := lookupEnv(env, "EXTRA")
	if base != "local-value" {
		t.Fatalf("local binding should win over imported, got %q", base)
	}
	if extra != "extra-value" {
		t.Fatalf("missing name should be filled from one-hop import, got %q", extra)
	}
}
