// Package staticgraph builds the baseline edge set straight from each
// file's parsed call sites, before any LLM-assisted resolution runs. Its
// output seeds both the Planner's worklist priorities and the Mapper's
// carry-over filter, per spec §4.4. The per-file read-and-parse dispatch
// (pure, independent per file) runs through a bounded
// golang.org/x/sync/errgroup; edge insertion stays single-threaded
// through Builder.Add, which owns the de-duplicating seenEdges map — the
// same split the corpus uses elsewhere between a parallel fetch stage and
// a single serializer.
package staticgraph

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/parse"
)

// ParsedFile bundles one script file's parser output. ReadFailed is set
// when the file's content couldn't be read; callers should skip folding
// such an entry into a Builder, matching the sequential "continue on
// read error" behavior this replaces.
type ParsedFile struct {
	File       models.ScriptFile
	CallSites  []models.CallSite
	Assigns    []models.VariableAssignment
	ReadFailed bool
}

// ParseFile dispatches to the correct per-language parser and tags each
// resulting CallSite/VariableAssignment with its owning file.
func ParseFile(f models.ScriptFile, src string) ParsedFile {
	pf := ParsedFile{File: f}
	switch f.Language {
	case models.LangShell:
		pf.CallSites = parse.ParseShell(src)
	case models.LangCmd:
		pf.CallSites, pf.Assigns = parse.ParseCmd(src)
	case models.LangPS1:
		pf.CallSites, pf.Assigns = parse.ParsePowerShell(src)
	case models.LangPerl:
		pf.CallSites = parse.ParsePerl(src)
	case models.LangPy:
		pf.CallSites = parse.ParsePython(src)
	default:
		// LangOther is not parsed; it contributes a node only.
	}
	for i := range pf.CallSites {
		pf.CallSites[i].Src = f.Path
	}
	for i := range pf.Assigns {
		pf.Assigns[i].ScopePath = f.Path
	}
	return pf
}

// ParseFilesConcurrently reads and parses every file in files, capped at
// GOMAXPROCS concurrent reads through an errgroup, and returns the
// results in the same order as files regardless of completion order. A
// file that fails to read is skipped (its ParsedFile carries no call
// sites), matching the caller's prior sequential "continue on read
// error" behavior. Reads go by each file's RawPath, not its canonical
// Path, since a windowsish bundle's canonical form may be lower-cased
// while the underlying filesystem stays case-sensitive.
func ParseFilesConcurrently(ctx context.Context, root string, files []models.ScriptFile) ([]ParsedFile, error) {
	out := make([]ParsedFile, len(files))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		i := i
		g.Go(func() error {
			f := files[i]
			src, err := os.ReadFile(filepath.Join(root, f.RawPath))
			if err != nil {
				out[i] = ParsedFile{File: f, ReadFailed: true}
				return nil
			}
			out[i] = ParseFile(f, string(src))
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Builder accumulates parsed files into a baseline Graph.
type Builder struct {
	c         *canon.Canonicalizer
	graph     *models.Graph
	assigns   []models.VariableAssignment
	callSites []models.CallSite
	seenEdges map[string]bool
}

// NewBuilder returns a Builder canonicalizing paths with c.
func NewBuilder(c *canon.Canonicalizer) *Builder {
	return &Builder{
		c:         c,
		graph:     models.NewGraph(),
		seenEdges: make(map[string]bool),
	}
}

// Add folds one file's parse output into the builder's running graph.
// Direct targets (a caller-relative path, or a "./"-prefixed token) are
// resolved to a node and given a static edge immediately; raw variable
// tokens are left to the Mapper, which owns dynamic resolution.
func (b *Builder) Add(pf ParsedFile) {
	node := pf.File
	node.Path = b.c.Canonical(node.Path)
	b.graph.AddNode(&node)
	b.assigns = append(b.assigns, pf.Assigns...)

	for _, cs := range pf.CallSites {
		b.callSites = append(b.callSites, cs)
		if cs.Dynamic {
			continue
		}
		dst, ok := b.resolveDirectTarget(node.Path, cs.RawTarget)
		if !ok {
			continue
		}
		e := models.Edge{
			Src:        node.Path,
			Dst:        dst,
			Kind:       cs.Kind,
			Command:    cs.CommandText,
			Dynamic:    false,
			Resolved:   true,
			Confidence: cs.Confidence,
			Reason:     "static direct target",
			Source:     models.EdgeFromStatic,
		}
		key := e.DedupeKey()
		if b.seenEdges[key] {
			continue
		}
		b.seenEdges[key] = true
		b.graph.Edges = append(b.graph.Edges, e)
	}
}

// resolveDirectTarget resolves a non-dynamic raw target to a canonical
// path, caller-relative to src's directory, per spec §4.1's Join rule.
func (b *Builder) resolveDirectTarget(src, rawTarget string) (string, bool) {
	if rawTarget == "" || parse.Plausible(rawTarget) == false {
		return "", false
	}
	if strings.ContainsAny(rawTarget, "$%!") {
		return "", false
	}
	return b.c.Join(src, rawTarget), true
}

// Graph returns the accumulated baseline graph.
func (b *Builder) Graph() *models.Graph { return b.graph }

// Assignments returns every VariableAssignment observed, in file-then
// observed order, ready for the Mapper's env_for to scope by ScopePath.
func (b *Builder) Assignments() []models.VariableAssignment { return b.assigns }

// CallSites returns every CallSite observed, including dynamic ones that
// the baseline builder chose not to resolve.
func (b *Builder) CallSites() []models.CallSite { return b.callSites }

// SortedNodePaths returns node paths in lexical order, matching the
// Reader's (worklist, priority-desc, lex) tie-breaking rule.
func (b *Builder) SortedNodePaths() []string {
	paths := make([]string, 0, len(b.graph.Nodes))
	for p := range b.graph.Nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
