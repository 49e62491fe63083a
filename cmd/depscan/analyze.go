package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/logging"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/pipeline"
	"github.com/arvidnilsson/depscan/internal/runlog"
	"github.com/arvidnilsson/depscan/internal/writer"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <bundle-root>",
	Short: "Run the full Planner → Reader → Mapper → Writer pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	outDir      string
	nodesPolicy string
)

func init() {
	analyzeCmd.Flags().StringVar(&outDir, "out", ".depscan", "output directory for artifacts")
	analyzeCmd.Flags().StringVar(&nodesPolicy, "nodes", "participating", "nodes policy: participating|all")
	bindBudgetFlags(analyzeCmd)
}

// bindBudgetFlags registers MAX_TOOL_CALLS/MAX_LAT_MS/MAX_LOOPS/MAX_FILES
// as flag overrides, per SPEC_FULL §4.9. The matching environment
// variable overrides are applied by the config package, not here.
func bindBudgetFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-tool-calls", 0, "override MAX_TOOL_CALLS")
	cmd.Flags().Int("max-lat-ms", 0, "override MAX_LAT_MS")
	cmd.Flags().Int("max-loops", -1, "override MAX_LOOPS")
	cmd.Flags().Int("max-files", 0, "override MAX_FILES")
}

func budgetFromFlagsAndConfig(cmd *cobra.Command) models.Budget {
	b := cfg.Budget.ToBudget()
	if v, _ := cmd.Flags().GetInt("max-tool-calls"); v > 0 {
		b.MaxToolCalls = v
	}
	if v, _ := cmd.Flags().GetInt("max-lat-ms"); v > 0 {
		b.MaxLatencyMs = v
	}
	if v, _ := cmd.Flags().GetInt("max-loops"); v >= 0 {
		b.MaxLoops = v
	}
	if v, _ := cmd.Flags().GetInt("max-files"); v > 0 {
		b.MaxFiles = v
	}
	return b
}

func buildLLMClient(ctx context.Context, log *logging.Logger) *llm.Client {
	return llm.New(ctx, llm.Config{
		Enabled:      cfg.LLM.Enabled,
		OpenAIAPIKey: cfg.LLM.OpenAIAPIKey,
		OpenAIModel:  cfg.LLM.OpenAIModel,
		GeminiAPIKey: cfg.LLM.GeminiAPIKey,
		GeminiModel:  cfg.LLM.GeminiModel,
	}, log.Slog())
}

func buildRunlogSink(log *logging.Logger) runlog.Sink {
	switch cfg.Storage.Type {
	case "postgres":
		sink, err := runlog.NewPostgresSink(cfg.Storage.PostgresDSN)
		if err != nil {
			log.Warn("failed to open postgres run log, falling back to no-op", "error", err)
			return runlog.NoopSink{}
		}
		return sink
	default:
		sink, err := runlog.NewSQLiteSink(cfg.Storage.LocalPath)
		if err != nil {
			log.Warn("failed to open sqlite run log, falling back to no-op", "error", err)
			return runlog.NoopSink{}
		}
		return sink
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root := args[0]

	log, err := logging.NewLogger(logging.Config{Level: verboseLevel()})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	llmClient := buildLLMClient(ctx, log)
	sink := buildRunlogSink(log)
	defer sink.Close()

	orch := pipeline.New(llmClient, sink, log)
	policy := models.NodesParticipating
	if nodesPolicy == "all" {
		policy = models.NodesAll
	}

	res, err := orch.Run(ctx, pipeline.Options{
		Root:           root,
		OutDir:         outDir,
		Windowsish:     cfg.Platform == "windows",
		NodesPolicy:    policy,
		LLMReaderHints: llmClient.Enabled(),
		Budget:         budgetFromFlagsAndConfig(cmd),
		RunID:          uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	for _, w := range res.Warnings {
		log.Warn("writer validation warning", "warning", w)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writer.WriteGraphYAML(outDir, res.Doc); err != nil {
		return fmt.Errorf("failed to write predicted_graph.yaml: %w", err)
	}
	if err := writer.WriteDOT(outDir, res.Doc, res.Unresolved); err != nil {
		return fmt.Errorf("failed to write graph.dot: %w", err)
	}
	if err := writer.WriteDiagnostics(outDir, res.Coverage, res.Unresolved); err != nil {
		return fmt.Errorf("failed to write run_report.json: %w", err)
	}
	stats := writer.RunStats{
		System:     "depscan",
		LatencyMs:  res.LatencyMs,
		Nodes:      len(res.Doc.Nodes),
		Edges:      len(res.Doc.Edges),
		Unresolved: len(res.Unresolved),
		Coverage:   res.Coverage,
	}
	if err := writer.WriteRunStats(outDir, stats); err != nil {
		return fmt.Errorf("failed to write run_stats.json: %w", err)
	}

	fmt.Printf("depscan: %d nodes, %d edges, %d unresolved, coverage %.1f%% — artifacts in %s\n",
		len(res.Doc.Nodes), len(res.Doc.Edges), len(res.Unresolved), res.Coverage*100, filepath.Clean(outDir))
	return nil
}

func verboseLevel() logging.LogLevel {
	if verbose {
		return logging.DEBUG
	}
	return logging.INFO
}
