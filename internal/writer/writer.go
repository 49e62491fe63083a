// Package writer implements the Exporter: dedupe, endpoint validation,
// nodes-policy application, final canonicalization, and emission of the
// predicted graph, DOT rendering, diagnostics, and run-stats artifacts.
// Grounded on the corpus's yaml.v3-based config serialization idiom
// (rohankatakam-coderisk's internal/config/config.go).
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/models"
)

// GraphDoc is the YAML shape of predicted_graph.yaml.
type GraphDoc struct {
	Nodes []string     `yaml:"nodes"`
	Edges []EdgeDoc    `yaml:"edges"`
}

// EdgeDoc is one edge's YAML shape. Confidence is pre-formatted to
// three decimals as a string so output is byte-stable across runs
// regardless of the host's float formatting.
type EdgeDoc struct {
	Src        string `yaml:"src"`
	Dst        string `yaml:"dst"`
	Kind       string `yaml:"kind"`
	Command    string `yaml:"command,omitempty"`
	Dynamic    bool   `yaml:"dynamic"`
	Resolved   bool   `yaml:"resolved"`
	Confidence string `yaml:"confidence"`
	Reason     string `yaml:"reason,omitempty"`
}

// Diagnostics is run_report.json's shape.
type Diagnostics struct {
	Coverage   float64                    `json:"coverage"`
	Unresolved []models.UnresolvedCallSite `json:"unresolved"`
}

// RunStats is run_stats.json's shape.
type RunStats struct {
	System            string         `json:"system"`
	LatencyMs         map[string]int `json:"latency_ms"`
	Nodes             int            `json:"nodes"`
	Edges             int            `json:"edges"`
	Unresolved        int            `json:"unresolved"`
	Coverage          float64        `json:"coverage,omitempty"`
	UnresolvedDetails []models.UnresolvedCallSite `json:"unresolved_details,omitempty"`
}

// Exporter runs the Writer's five-step pipeline, per spec §4.8.
type Exporter struct {
	c      *canon.Canonicalizer
	policy models.NodesPolicy
}

// New returns an Exporter. policy controls which nodes survive step 3.
func New(c *canon.Canonicalizer, policy models.NodesPolicy) *Exporter {
	return &Exporter{c: c, policy: policy}
}

// Export runs dedupe, validation, nodes-policy, and canonicalization
// over edges/nodes, returning the final GraphDoc plus any validation
// warnings (step 2's best-effort behavior: warnings never block
// artifact emission).
func (e *Exporter) Export(nodes map[string]*models.ScriptFile, edges []models.Edge, unresolvedSrcs map[string]bool) (GraphDoc, []string) {
	deduped := dedupe(edges)

	var warnings []string
	nodeSet := make(map[string]bool, len(nodes))
	for p := range nodes {
		nodeSet[p] = true
	}
	for _, ed := range deduped {
		if !nodeSet[ed.Src] {
			warnings = append(warnings, fmt.Sprintf("edge src %q is not a known node", ed.Src))
		}
		if !nodeSet[ed.Dst] {
			warnings = append(warnings, fmt.Sprintf("edge dst %q is not a known node", ed.Dst))
		}
	}

	participating := make(map[string]bool)
	for _, ed := range deduped {
		participating[ed.Src] = true
		participating[ed.Dst] = true
	}
	for src := range unresolvedSrcs {
		participating[src] = true
	}

	var nodeList []string
	for p := range nodeSet {
		if e.policy == models.NodesAll || participating[p] {
			nodeList = append(nodeList, e.c.Canonical(p))
		}
	}
	sort.Strings(nodeList)
	nodeList = dedupeStrings(nodeList)

	edgeDocs := make([]EdgeDoc, 0, len(deduped))
	for _, ed := range deduped {
		edgeDocs = append(edgeDocs, EdgeDoc{
			Src:        e.c.Canonical(ed.Src),
			Dst:        e.c.Canonical(ed.Dst),
			Kind:       string(ed.Kind),
			Command:    ed.Command,
			Dynamic:    ed.Dynamic,
			Resolved:   ed.Resolved,
			Confidence: formatConfidence(ed.Confidence),
			Reason:     ed.Reason,
		})
	}
	sort.Slice(edgeDocs, func(i, j int) bool {
		if edgeDocs[i].Src != edgeDocs[j].Src {
			return edgeDocs[i].Src < edgeDocs[j].Src
		}
		return edgeDocs[i].Dst < edgeDocs[j].Dst
	})

	return GraphDoc{Nodes: nodeList, Edges: edgeDocs}, warnings
}

func dedupe(edges []models.Edge) []models.Edge {
	seen := make(map[string]bool, len(edges))
	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		key := e.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func dedupeStrings(sorted []string) []string {
	out := sorted[:0]
	var last string
	first := true
	for _, s := range sorted {
		if !first && s == last {
			continue
		}
		out = append(out, s)
		last = s
		first = false
	}
	return out
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%.3f", c)
}

// WriteGraphYAML writes doc as predicted_graph.yaml under dir.
func WriteGraphYAML(dir string, doc GraphDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "predicted_graph.yaml"), data, 0o644)
}

// WriteDOT writes graph.dot under dir, color-coding edges per spec §4.8:
// black for static-resolved, blue for dynamic-resolved, orange for
// unresolved edges. Each unresolved call site is drawn as a dashed
// orange edge from its source to its raw target.
func WriteDOT(dir string, doc GraphDoc, unresolved []models.UnresolvedCallSite) error {
	var b strings.Builder
	b.WriteString("digraph depscan {\n")
	for _, n := range doc.Nodes {
		b.WriteString(fmt.Sprintf("  %q;\n", n))
	}
	for _, ed := range doc.Edges {
		color := "black"
		if ed.Dynamic && ed.Resolved {
			color = "blue"
		} else if !ed.Resolved {
			color = "orange"
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [color=%s];\n", ed.Src, ed.Dst, color))
	}
	for _, u := range unresolved {
		b.WriteString(fmt.Sprintf("  %q -> %q [color=orange, style=dashed];\n", u.Src, u.RawTarget))
	}
	b.WriteString("}\n")
	return os.WriteFile(filepath.Join(dir, "graph.dot"), []byte(b.String()), 0o644)
}

// WriteDiagnostics writes run_report.json under dir: coverage plus the
// first 50 unresolved call sites.
func WriteDiagnostics(dir string, coverage float64, unresolved []models.UnresolvedCallSite) error {
	capped := unresolved
	if len(capped) > 50 {
		capped = capped[:50]
	}
	data, err := json.MarshalIndent(Diagnostics{Coverage: coverage, Unresolved: capped}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "run_report.json"), data, 0o644)
}

// WriteRunStats writes run_stats.json under dir.
func WriteRunStats(dir string, stats RunStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "run_stats.json"), data, 0o644)
}

// Coverage returns the fraction of nodes that participate in at least
// one edge. An unresolved call-site source with no edge is not counted.
func Coverage(nodeCount int, doc GraphDoc) float64 {
	if nodeCount == 0 {
		return 0
	}
	participating := make(map[string]bool)
	for _, ed := range doc.Edges {
		participating[ed.Src] = true
		participating[ed.Dst] = true
	}
	return float64(len(participating)) / float64(nodeCount)
}
