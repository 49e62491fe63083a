package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/index"
	"github.com/arvidnilsson/depscan/internal/logging"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/reader"
	"github.com/arvidnilsson/depscan/internal/resolver"
	"github.com/arvidnilsson/depscan/internal/staticgraph"
	"github.com/arvidnilsson/depscan/internal/writer"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <bundle-root>",
	Short: "Run Reader → Mapper directly, skipping the Planner",
	Long: `For bundles small enough that building a Read Manifest isn't worth
it: indexed files are read, up to the MaxFiles budget, at the default
peek window in lexical order and handed straight to the Mapper.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&outDir, "out", ".depscan", "output directory for artifacts")
	bindBudgetFlags(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root := args[0]

	log, err := logging.NewLogger(logging.Config{Level: verboseLevel()})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	windowsish := cfg.Platform == "windows" || index.DetectPlatform(root)
	c := canon.New(windowsish)

	ix := index.New(windowsish, false)
	idxResult, err := ix.Index(ctx, root)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	allowList := idxResult.AllowList()

	builder := staticgraph.NewBuilder(c)
	files := make(map[string]models.ScriptFile, len(idxResult.Files))
	nodes := make(map[string]*models.ScriptFile, len(idxResult.Files))
	for i := range idxResult.Files {
		f := idxResult.Files[i]
		files[f.Path] = f
		nodes[f.Path] = &idxResult.Files[i]
	}
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

	manifest := models.NewReadManifest()
	manifest.Budget = budgetFromFlagsAndConfig(cmd)
	for _, path := range builder.SortedNodePaths() {
		manifest.Worklist = append(manifest.Worklist, path)
		manifest.Priority[path] = 10
		manifest.PeekWindow[path] = 4096
	}

	llmClient := buildLLMClient(ctx, log)
	batch := reader.Run(ctx, llmClient, root, manifest, files)

	budget := manifest.Budget
	mapper := resolver.New(c, llmClient, allowList, &budget)
	mapper.SetRoot(root)
	res := mapper.Resolve(ctx, batch, builder.Graph(), nil)

	exporter := writer.New(c, models.NodesParticipating)
	unresolvedSrcs := make(map[string]bool, len(res.Unresolved))
	for _, u := range res.Unresolved {
		unresolvedSrcs[u.Src] = true
	}
	doc, warnings := exporter.Export(nodes, res.Edges, unresolvedSrcs)
	for _, w := range warnings {
		log.Warn("writer validation warning", "warning", w)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writer.WriteGraphYAML(outDir, doc); err != nil {
		return fmt.Errorf("failed to write predicted_graph.yaml: %w", err)
	}
	if err := writer.WriteDOT(outDir, doc, res.Unresolved); err != nil {
		return fmt.Errorf("failed to write graph.dot: %w", err)
	}

	fmt.Printf("depscan resolve: %d nodes, %d edges, %d unresolved\n", len(doc.Nodes), len(doc.Edges), len(res.Unresolved))
	return nil
}
