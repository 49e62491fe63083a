// Package pipeline wires the four roles (Planner, Reader, Mapper,
// Writer) into the orchestrator the CLI drives. Grounded on
// rohankatakam-coderisk's internal/linking/orchestrator.go phase-runner
// shape, generalized from issue-PR linking's three fixed phases to this
// domain's four roles plus the Mapper's budget-bounded re-loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/index"
	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/logging"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/planner"
	"github.com/arvidnilsson/depscan/internal/reader"
	"github.com/arvidnilsson/depscan/internal/resolver"
	"github.com/arvidnilsson/depscan/internal/retry"
	"github.com/arvidnilsson/depscan/internal/runlog"
	"github.com/arvidnilsson/depscan/internal/staticgraph"
	"github.com/arvidnilsson/depscan/internal/writer"
)

// Options configures a single orchestrator run.
type Options struct {
	Root           string
	OutDir         string
	Windowsish     bool
	NodesPolicy    models.NodesPolicy
	LLMReaderHints bool
	Budget         models.Budget
	RunID          string
}

// Orchestrator coordinates Indexer → Static Graph Builder → Planner →
// Reader → Mapper → Writer, plus the Mapper's re-loop.
type Orchestrator struct {
	llmClient *llm.Client
	sink      runlog.Sink
	log       *logging.Logger

	canon *canon.Canonicalizer
}

// New returns an Orchestrator. A nil sink is replaced with a no-op one
// so callers never need to special-case run logging being disabled.
func New(llmClient *llm.Client, sink runlog.Sink, log *logging.Logger) *Orchestrator {
	if sink == nil {
		sink = runlog.NoopSink{}
	}
	return &Orchestrator{llmClient: llmClient, sink: sink, log: log}
}

// Result is the orchestrator's final output, ready for the Writer's
// artifact emission.
type Result struct {
	Doc         writer.GraphDoc
	Warnings    []string
	Unresolved  []models.UnresolvedCallSite
	Coverage    float64
	LatencyMs   map[string]int
}

// Run executes the full pipeline and returns the final graph.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	latency := make(map[string]int)
	overallStart := time.Now()

	windowsish := opts.Windowsish || index.DetectPlatform(opts.Root)
	o.canon = canon.New(windowsish)

	phaseStart := time.Now()
	ix := index.New(windowsish, false)
	idxResult, err := ix.Index(ctx, opts.Root)
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	allowList := idxResult.AllowList()

	builder := staticgraph.NewBuilder(o.canon)
	files := make(map[string]models.ScriptFile, len(idxResult.Files))
	for _, f := range idxResult.Files {
		files[f.Path] = f
	}
	parsed, err := staticgraph.ParseFilesConcurrently(ctx, opts.Root, idxResult.Files)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	for _, pf := range parsed {
		if pf.ReadFailed {
			continue
		}
		builder.Add(pf)
	}
	o.logPhase(ctx, opts.RunID, "static_graph", phaseStart)
	latency["static_graph"] = int(time.Since(phaseStart).Milliseconds())

	nodes := make(map[string]*models.ScriptFile, len(idxResult.Files))
	for i := range idxResult.Files {
		nodes[idxResult.Files[i].Path] = &idxResult.Files[i]
	}

	phaseStart = time.Now()
	seeds, _ := planner.LoadSeeds(opts.Root)
	var dynamicSrcs []string
	for _, cs := range builder.CallSites() {
		if cs.Dynamic {
			dynamicSrcs = append(dynamicSrcs, cs.Src)
		}
	}
	manifest := planner.Build(idxResult.Files, seeds, dynamicSrcs, windowsish)
	manifest.Budget = opts.Budget
	manifest.LLMReaderHints = opts.LLMReaderHints
	o.logPhase(ctx, opts.RunID, "plan", phaseStart)
	latency["plan"] = int(time.Since(phaseStart).Milliseconds())

	phaseStart = time.Now()
	batch := reader.Run(ctx, o.llmClient, opts.Root, manifest, files)
	o.logPhase(ctx, opts.RunID, "read", phaseStart)
	latency["read"] = int(time.Since(phaseStart).Milliseconds())

	phaseStart = time.Now()
	mapper := resolver.New(o.canon, o.llmClient, allowList, &opts.Budget)
	mapper.SetRoot(opts.Root)
	res := mapper.Resolve(ctx, batch, builder.Graph(), nil)
	o.logPhase(ctx, opts.RunID, "resolve", phaseStart)
	latency["resolve"] = int(time.Since(phaseStart).Milliseconds())

	if opts.Budget.MaxLoops > 0 && len(res.Unresolved) > 0 {
		res = o.reLoop(ctx, opts, manifest, files, allowList, builder, res, latency)
	}

	phaseStart = time.Now()
	exporter := writer.New(o.canon, opts.NodesPolicy)
	unresolvedSrcs := make(map[string]bool, len(res.Unresolved))
	for _, u := range res.Unresolved {
		unresolvedSrcs[u.Src] = true
	}
	doc, warnings := exporter.Export(nodes, res.Edges, unresolvedSrcs)
	o.logPhase(ctx, opts.RunID, "write", phaseStart)
	latency["write"] = int(time.Since(phaseStart).Milliseconds())

	coverage := writer.Coverage(len(doc.Nodes), doc)
	latency["total"] = int(time.Since(overallStart).Milliseconds())

	return &Result{
		Doc:        doc,
		Warnings:   warnings,
		Unresolved: res.Unresolved,
		Coverage:   coverage,
		LatencyMs:  latency,
	}, nil
}

// reLoop re-runs the Reader with a promoted peek window for sources
// with remaining unresolved call sites, then the Mapper again, per
// spec §4.7's budget-enforcement clause. Modeled on retry.Queue's
// dlq-style retry-counted entries: each source is re-enqueued after
// every pass that still leaves it unresolved, so its RetryCount
// actually advances, and the loop itself iterates up to MaxLoops times
// rather than running the promoted pass only once — a source isn't
// truly exhausted, and shouldn't be dropped from diagnostics, until it
// has used up its whole retry budget.
func (o *Orchestrator) reLoop(ctx context.Context, opts Options, manifest *models.ReadManifest, files map[string]models.ScriptFile, allowList map[string]bool, builder *staticgraph.Builder, res resolver.Result, latency map[string]int) resolver.Result {
	q := retry.NewQueue(opts.Budget.MaxLoops)
	bySrc := make(map[string][]models.UnresolvedCallSite)
	for _, u := range res.Unresolved {
		bySrc[u.Src] = append(bySrc[u.Src], u)
	}
	for src, u := range bySrc {
		q.Enqueue(src, u)
	}

	merged := res
	for iter := 0; iter < opts.Budget.MaxLoops; iter++ {
		pending := q.PendingRetries()
		if len(pending) == 0 {
			break
		}

		promoted := models.NewReadManifest()
		promoted.Budget = opts.Budget
		promoted.LLMReaderHints = opts.LLMReaderHints
		for _, src := range pending {
			promoted.Worklist = append(promoted.Worklist, src)
			promoted.Priority[src] = 200
			promoted.PeekWindow[src] = 8192
		}

		phaseName := fmt.Sprintf("read_reloop_%d", iter+1)
		phaseStart := time.Now()
		promotedBatch := reader.Run(ctx, o.llmClient, opts.Root, promoted, files)
		o.logPhase(ctx, opts.RunID, phaseName, phaseStart)
		latency[phaseName] = int(time.Since(phaseStart).Milliseconds())

		resolveName := fmt.Sprintf("resolve_reloop_%d", iter+1)
		phaseStart = time.Now()
		mapper := resolver.New(o.canon, o.llmClient, allowList, &opts.Budget)
		mapper.SetRoot(opts.Root)
		extra := mapper.Resolve(ctx, promotedBatch, builder.Graph(), nil)
		o.logPhase(ctx, opts.RunID, resolveName, phaseStart)
		latency[resolveName] = int(time.Since(phaseStart).Milliseconds())

		merged.Edges = append(merged.Edges, extra.Edges...)

		stillUnresolved := make(map[string][]models.UnresolvedCallSite)
		for _, u := range extra.Unresolved {
			stillUnresolved[u.Src] = append(stillUnresolved[u.Src], u)
		}
		for _, src := range pending {
			if len(stillUnresolved[src]) == 0 {
				q.Resolve(src)
				continue
			}
			q.Enqueue(src, stillUnresolved[src])
		}
	}

	merged.Unresolved = q.Exhausted()
	return merged
}

func (o *Orchestrator) logPhase(ctx context.Context, runID, phase string, start time.Time) {
	if err := o.sink.LogPhase(ctx, runID, phase, start, time.Now()); err != nil && o.log != nil {
		o.log.Warn("failed to log phase", "phase", phase, "error", err)
	}
}
