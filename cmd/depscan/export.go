package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/writer"
)

var exportCmd = &cobra.Command{
	Use:   "export <graph.yaml>",
	Short: "Re-canonicalize and re-dedupe an existing predicted graph",
	Long: `Reads an existing predicted_graph.yaml, re-applies path
canonicalization and edge deduplication, and overwrites it in place.
Running this twice on its own output must be a no-op — the canonicalizer
and the dedupe pass are both idempotent.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc writer.GraphDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	c := canon.New(cfg.Platform == "windows")
	nodes := make(map[string]*models.ScriptFile, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodes[n] = &models.ScriptFile{Path: n}
	}

	edges := make([]models.Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		conf, _ := strconv.ParseFloat(e.Confidence, 64)
		edges = append(edges, models.Edge{
			Src: e.Src, Dst: e.Dst, Kind: models.CallKind(e.Kind), Command: e.Command,
			Dynamic: e.Dynamic, Resolved: e.Resolved, Confidence: conf, Reason: e.Reason,
		})
		nodes[e.Src] = &models.ScriptFile{Path: e.Src}
		nodes[e.Dst] = &models.ScriptFile{Path: e.Dst}
	}

	exporter := writer.New(c, models.NodesAll)
	reDoc, warnings := exporter.Export(nodes, edges, nil)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	out, err := yaml.Marshal(reDoc)
	if err != nil {
		return fmt.Errorf("failed to marshal re-exported graph: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("depscan export: %d nodes, %d edges re-canonicalized and deduped\n", len(reDoc.Nodes), len(reDoc.Edges))
	return nil
}
