package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/index"
	"github.com/arvidnilsson/depscan/internal/planner"
	"github.com/arvidnilsson/depscan/internal/staticgraph"
)

var planCmd = &cobra.Command{
	Use:   "plan <bundle-root>",
	Short: "Run the Indexer, parsers, and Planner only, printing the Read Manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root := args[0]

	windowsish := cfg.Platform == "windows" || index.DetectPlatform(root)
	c := canon.New(windowsish)

	ix := index.New(windowsish, false)
	idxResult, err := ix.Index(ctx, root)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	builder := staticgraph.NewBuilder(c)
	parsed, err := staticgraph.ParseFilesConcurrently(ctx, root, idxResult.Files)
	if err != nil {
		return fmt.Errorf("parsing failed: %w", err)
	}
	for _, pf := range parsed {
		if pf.ReadFailed {
			continue
		}
		builder.Add(pf)
	}

	seeds, _ := planner.LoadSeeds(root)
	var dynamicSrcs []string
	for _, cs := range builder.CallSites() {
		if cs.Dynamic {
			dynamicSrcs = append(dynamicSrcs, cs.Src)
		}
	}
	manifest := planner.Build(idxResult.Files, seeds, dynamicSrcs, windowsish)

	fmt.Printf("Read Manifest for %s (windowsish=%v)\n", root, windowsish)
	for _, path := range orderedForDisplay(manifest.Worklist, manifest.Priority) {
		fmt.Printf("  %4d  %s  (peek=%d)\n", manifest.Priority[path], path, manifest.PeekWindow[path])
	}
	fmt.Printf("%d static edges resolved before any LLM assistance\n", len(builder.Graph().Edges))
	return nil
}

func orderedForDisplay(worklist []string, priority map[string]int) []string {
	order := append([]string(nil), worklist...)
	sort.Slice(order, func(i, j int) bool {
		pi, pj := priority[order[i]], priority[order[j]]
		if pi != pj {
			return pi > pj
		}
		return order[i] < order[j]
	})
	return order
}
