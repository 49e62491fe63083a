package writer

import (
	"testing"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/models"
)

func TestExport_DedupesRepeatedEdges(t *testing.T) {
	e := New(canon.New(false), models.NodesAll)
	nodes := map[string]*models.ScriptFile{
		"run.sh":  {Path: "run.sh", Language: models.LangShell},
		"lib.sh":  {Path: "lib.sh", Language: models.LangShell},
	}
	edges := []models.Edge{
		{Src: "run.sh", Dst: "lib.sh", Kind: models.KindCall, Command: "./lib.sh", Resolved: true, Confidence: 0.9},
		{Src: "run.sh", Dst: "lib.sh", Kind: models.KindCall, Command: "./lib.sh", Resolved: true, Confidence: 0.9},
	}
	doc, warnings := e.Export(nodes, edges, nil)
	if len(doc.Edges) != 1 {
		t.Fatalf("want 1 deduped edge, got %d", len(doc.Edges))
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if doc.Edges[0].Confidence != "0.900" {
		t.Fatalf("expected 3-decimal confidence, got %q", doc.Edges[0].Confidence)
	}
}

func TestExport_WarnsOnUnknownEndpoint(t *testing.T) {
	e := New(canon.New(false), models.NodesAll)
	nodes := map[string]*models.ScriptFile{"run.sh": {Path: "run.sh", Language: models.LangShell}}
	edges := []models.Edge{
		{Src: "run.sh", Dst: "missing.sh", Kind: models.KindCall, Resolved: true},
	}
	_, warnings := e.Export(nodes, edges, nil)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning about missing.sh, got %v", warnings)
	}
}

func TestExport_ParticipatingPolicyDropsUnreferencedNodes(t *testing.T) {
	e := New(canon.New(false), models.NodesParticipating)
	nodes := map[string]*models.ScriptFile{
		"run.sh":    {Path: "run.sh", Language: models.LangShell},
		"lib.sh":    {Path: "lib.sh", Language: models.LangShell},
		"orphan.sh": {Path: "orphan.sh", Language: models.LangShell},
	}
	edges := []models.Edge{
		{Src: "run.sh", Dst: "lib.sh", Kind: models.KindCall, Resolved: true},
	}
	doc, _ := e.Export(nodes, edges, nil)
	if len(doc.Nodes) != 2 {
		t.Fatalf("expected orphan.sh dropped, got %v", doc.Nodes)
	}
	for _, n := range doc.Nodes {
		if n == "orphan.sh" {
			t.Fatalf("orphan.sh should have been dropped")
		}
	}
}

func TestExport_ParticipatingPolicyKeepsUnresolvedSource(t *testing.T) {
	e := New(canon.New(false), models.NodesParticipating)
	nodes := map[string]*models.ScriptFile{
		"run.sh":      {Path: "run.sh", Language: models.LangShell},
		"untouched.sh": {Path: "untouched.sh", Language: models.LangShell},
	}
	doc, _ := e.Export(nodes, nil, map[string]bool{"run.sh": true})
	found := false
	for _, n := range doc.Nodes {
		if n == "run.sh" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected run.sh kept as an unresolved source, got %v", doc.Nodes)
	}
	if len(doc.Nodes) != 1 {
		t.Fatalf("expected untouched.sh dropped, got %v", doc.Nodes)
	}
}

func TestCoverage_ComputesParticipatingFraction(t *testing.T) {
	doc := GraphDoc{
		Nodes: []string{"a.sh", "b.sh", "c.sh"},
		Edges: []EdgeDoc{{Src: "a.sh", Dst: "b.sh"}},
	}
	cov := Coverage(3, doc)
	if cov < 0.666 || cov > 0.667 {
		t.Fatalf("expected ~0.667 coverage, got %f", cov)
	}
}
