// Package models holds the data-model entities shared across every phase
// of the bundle-resolution pipeline: script files, variable assignments,
// call sites, edges, the graph itself, and the planner/reader envelopes
// that carry state between phases.
//
// Entities here are produced by one phase and consumed, read-only, by the
// next. Nothing in this package mutates a value after it has been handed
// to the next phase.
package models

import "fmt"

// Language tags a Script File by the interpreter that would run it.
type Language string

const (
	LangShell Language = "sh"
	LangCmd   Language = "cmd"
	LangPS1   Language = "ps1"
	LangPy    Language = "py"
	LangPerl  Language = "pl"
	LangOther Language = "other"
)

// LanguageForExt maps a file extension (including the leading dot) to a
// Language tag. Unrecognized extensions map to LangOther.
func LanguageForExt(ext string) Language {
	switch ext {
	case ".sh", ".bash", ".ksh":
		return LangShell
	case ".bat", ".cmd":
		return LangCmd
	case ".ps1":
		return LangPS1
	case ".py":
		return LangPy
	case ".pl":
		return LangPerl
	default:
		return LangOther
	}
}

// ScriptFile is a single indexed file in the bundle. Created during
// indexing; never mutated afterward.
type ScriptFile struct {
	Path        string // canonical relative path from the bundle root
	RawPath     string // filesystem-actual relative path, pre-case-folding; use this for any real I/O
	Language    Language
	Size        int64
	ContentHash string // optional; HighwayHash-64 of the file bytes, hex-encoded
}

// CallKind distinguishes an invocation from a dot-source/import.
type CallKind string

const (
	KindCall   CallKind = "call"
	KindSource CallKind = "source"
)

// VariableAssignment is a single binding observed in one scope (file).
// Higher Precedence wins within a scope; ties are broken by first-seen
// order, which callers preserve by appending in observed order.
type VariableAssignment struct {
	ScopePath  string
	Name       string
	Value      string
	Precedence int
	// Raw holds the unevaluated right-hand side for bindings whose value
	// may need re-evaluation against a richer environment than was
	// available at parse time (PowerShell Join-Path expressions, whose
	// operands may resolve only after a one-hop dot-source import is
	// merged in). Empty for bindings whose Value is already final.
	Raw string
}

// CallSite is a single textual invocation or dot-source found in a file.
// RawTarget is the unexpanded token exactly as it appears in source.
type CallSite struct {
	Src         string
	RawTarget   string
	CommandText string
	Kind        CallKind
	Dynamic     bool
	Confidence  float64
}

// EdgeSource records, for internal bookkeeping only (never exported),
// whether an edge came from the static baseline or was added by the
// Mapper.
type EdgeSource string

const (
	EdgeFromStatic EdgeSource = "static"
	EdgeFromMapper EdgeSource = "mapper"
)

// Edge is a resolved dependency between two script files.
type Edge struct {
	Src        string
	Dst        string
	Kind       CallKind
	Command    string
	Dynamic    bool
	Resolved   bool
	Confidence float64
	Reason     string
	Source     EdgeSource
}

// DedupeKey returns the tuple identity that defines set-semantics
// uniqueness for edges, per the dedupe invariant.
func (e Edge) DedupeKey() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%t\x00%t", e.Src, e.Dst, e.Kind, e.Command, e.Dynamic, e.Resolved)
}

// Graph is a mapping from canonical path to optional metadata plus an
// ordered sequence of edges.
type Graph struct {
	Nodes map[string]*ScriptFile
	Edges []Edge
}

// NewGraph returns an empty, ready-to-use Graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*ScriptFile)}
}

// AddNode registers a script file as a node, replacing any prior entry
// with the same path.
func (g *Graph) AddNode(f *ScriptFile) {
	g.Nodes[f.Path] = f
}

// NodesPolicy controls which nodes survive export.
type NodesPolicy string

const (
	NodesParticipating NodesPolicy = "participating" // only nodes touched by an edge, or an unresolved source
	NodesAll           NodesPolicy = "all"
)

// ObservationBatch is the Reader's structured output: a bundle-scoped
// triple of homogeneous sequences, consumed by the Mapper.
type ObservationBatch struct {
	Files     []ScriptFile
	EnvVars   []VariableAssignment
	CallSites []CallSite
}

// Budget bounds the work a run is allowed to do.
type Budget struct {
	MaxToolCalls int
	MaxLatencyMs int
	MaxLoops     int
	MaxFiles     int
}

// DefaultBudget matches the Planner's defaults from the spec.
func DefaultBudget() Budget {
	return Budget{
		MaxToolCalls: 100,
		MaxLatencyMs: 60_000,
		MaxLoops:     1,
		MaxFiles:     60,
	}
}

// ReadManifest is the Planner's output: an ordered worklist, per-file
// peek windows, normalization policy, and the budget envelope.
type ReadManifest struct {
	Worklist       []string
	Priority       map[string]int
	PeekWindow     map[string]int // bytes; default 4096, promoted to 8192
	Workdir        string
	LLMReaderHints bool
	Windowsish     bool
	Budget         Budget
}

// NewReadManifest returns a manifest with the spec's policy defaults.
func NewReadManifest() *ReadManifest {
	return &ReadManifest{
		Priority:   make(map[string]int),
		PeekWindow: make(map[string]int),
		Workdir:    ".",
		Budget:     DefaultBudget(),
	}
}

// UnresolvedCallSite is a diagnostic record for a call site the Mapper
// could not resolve to an allow-listed target.
type UnresolvedCallSite struct {
	Src       string
	RawTarget string
	Command   string
	Reason    string
}
