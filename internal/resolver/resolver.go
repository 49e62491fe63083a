// Package resolver implements the Mapper: given the Observation Batch
// and the static baseline graph, it produces the final edge set and a
// list of unresolved call sites. Grounded on rohankatakam-coderisk's
// internal/resolution/fuzzy.go (LLM-then-heuristic fallback shape) and
// internal/dlq (retry-on-miss queue, generalized here into the Mapper's
// budget-bounded re-loop). Per-dynamic-call-site resolution (each one an
// independent, network-bound LLM round trip) runs through a bounded
// golang.org/x/sync/errgroup; every goroutine's outcome is merged into
// the shared edge/unresolved sets afterward, single-threaded, so the
// dedupe map never needs its own lock.
package resolver

import (
	"context"
	"encoding/json"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/parse"
)

var acceptedInvocationPrefixes = []string{
	". ", "source ", "& ", "call ", "start ",
	"bash ", "sh ", "ksh ", "python ", "python3 ", "perl ",
}

var directScriptCallRe = regexp.MustCompile(`\.[a-zA-Z0-9]+\s*$`)

// Result is the Mapper's output.
type Result struct {
	Edges      []models.Edge
	Unresolved []models.UnresolvedCallSite
}

// Mapper resolves an Observation Batch against a static baseline graph
// and an allow-list.
type Mapper struct {
	c         *canon.Canonicalizer
	llmClient *llm.Client
	allowList map[string]bool
	budget    *models.Budget
	toolCalls int
	root      string

	mu sync.Mutex // guards toolCalls and budget against the concurrent dynamic-resolution pass
}

// New returns a Mapper. budget is mutated as LLM calls are spent across
// the whole run, including any re-loop, so callers share one Budget
// value across Resolve invocations within a run.
func New(c *canon.Canonicalizer, llmClient *llm.Client, allowList map[string]bool, budget *models.Budget) *Mapper {
	return &Mapper{c: c, llmClient: llmClient, allowList: allowList, budget: budget, root: "."}
}

// SetRoot records the bundle root path sent to the LLM collaborator in
// the Mapper prompt, per the contract's {root, src, command, ...} shape.
func (m *Mapper) SetRoot(root string) { m.root = root }

// Resolve runs one pass of Mapper logic over batch, carrying over
// baseline static edges and resolving dynamic call sites concurrently
// (each is an independent LLM round trip); results are merged back in
// manifest order regardless of completion order, per spec §4.7.
func (m *Mapper) Resolve(ctx context.Context, batch models.ObservationBatch, baseline *models.Graph, dotSourceTargets map[string]string) Result {
	var res Result
	seen := make(map[string]bool)
	baselineCovered := make(map[string]bool, len(baseline.Edges))

	for _, e := range baseline.Edges {
		if e.Source != models.EdgeFromStatic {
			continue
		}
		baselineCovered[baselineCallSiteKey(e.Src, e.Command)] = true
		if !m.carryOver(e) {
			continue
		}
		key := e.Src + "\x00" + e.Dst + "\x00" + string(e.Kind)
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Edges = append(res.Edges, e)
	}

	envCache := make(map[string][]models.VariableAssignment)
	envFor := func(src string) []models.VariableAssignment {
		if v, ok := envCache[src]; ok {
			return v
		}
		v := m.envFor(src, batch.EnvVars, dotSourceTargets)
		envCache[src] = v
		return v
	}

	type dynOutcome struct {
		edge       models.Edge
		unresolved models.UnresolvedCallSite
		hasEdge    bool
	}

	var dynamicSites []models.CallSite
	var dynamicEnvs [][]models.VariableAssignment
	for _, cs := range batch.CallSites {
		if !cs.Dynamic {
			if baselineCovered[baselineCallSiteKey(cs.Src, cs.CommandText)] {
				// Already decided by the Static Graph Builder (carried
				// over above if it passed carryOver, dropped if it
				// didn't); resolveNonDynamic has no such filter, so
				// re-running it here would re-admit exactly what the
				// baseline intentionally rejected.
				continue
			}
			m.resolveNonDynamic(cs, envFor(cs.Src), seen, &res)
			continue
		}
		dynamicSites = append(dynamicSites, cs)
		dynamicEnvs = append(dynamicEnvs, envFor(cs.Src))
	}

	if len(dynamicSites) > 0 {
		outcomes := make([]dynOutcome, len(dynamicSites))
		workers := runtime.GOMAXPROCS(0)
		if workers > len(dynamicSites) {
			workers = len(dynamicSites)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range dynamicSites {
			i := i
			g.Go(func() error {
				edge, unresolved, hasEdge := m.resolveDynamic(gctx, dynamicSites[i], dynamicEnvs[i], batch)
				outcomes[i] = dynOutcome{edge: edge, unresolved: unresolved, hasEdge: hasEdge}
				return nil
			})
		}
		_ = g.Wait() // resolveDynamic never returns an error; nothing to propagate

		for _, o := range outcomes {
			if o.hasEdge {
				m.addEdge(o.edge, seen, &res)
				continue
			}
			res.Unresolved = append(res.Unresolved, o.unresolved)
		}
	}

	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].Src != res.Edges[j].Src {
			return res.Edges[i].Src < res.Edges[j].Src
		}
		return res.Edges[i].Dst < res.Edges[j].Dst
	})
	return res
}

// baselineCallSiteKey identifies a call site across the Static Graph
// Builder's full-file parse and the Reader's peek-window re-parse, which
// run the same per-language parsers over (ideally) the same source text.
func baselineCallSiteKey(src, command string) string {
	return src + "\x00" + command
}

// carryOver applies the baseline carry-over filter: the destination
// must be in the allow-list (case-aware) and the command text must be
// empty or begin with an accepted invocation prefix or match a direct
// script-call pattern.
func (m *Mapper) carryOver(e models.Edge) bool {
	if !m.allowList[e.Dst] {
		return false
	}
	if e.Command == "" {
		return true
	}
	for _, p := range acceptedInvocationPrefixes {
		if strings.HasPrefix(e.Command, p) {
			return true
		}
	}
	return directScriptCallRe.MatchString(e.Command)
}

// envFor implements the scoped variable-precedence resolution of spec
// §4.7: local bindings first, then a one-hop fill-missing-only import
// from the file that dotSourceTargets maps src to, then (for PowerShell)
// a Join-Path post-process over the merged environment. Dot-source
// targets are taken only from that map; they are not derived from the
// batch's or the baseline's source call sites.
func (m *Mapper) envFor(src string, all []models.VariableAssignment, dotSourceTargets map[string]string) []models.VariableAssignment {
	env := make(map[string]models.VariableAssignment)
	applyScoped(env, all, src)

	if imported, ok := dotSourceTargets[src]; ok {
		fillMissing(env, all, imported)
	}

	if strings.HasSuffix(strings.ToLower(src), ".ps1") {
		m.resolveJoinPathRaw(env)
	}
	return flattenEnv(env)
}

func applyScoped(env map[string]models.VariableAssignment, all []models.VariableAssignment, scope string) {
	for _, a := range all {
		if a.ScopePath != scope {
			continue
		}
		existing, ok := env[a.Name]
		if !ok || a.Precedence > existing.Precedence {
			env[a.Name] = a
		}
	}
}

func fillMissing(env map[string]models.VariableAssignment, all []models.VariableAssignment, fromScope string) {
	imported := make(map[string]models.VariableAssignment)
	applyScoped(imported, all, fromScope)
	for name, a := range imported {
		if _, ok := env[name]; !ok {
			env[name] = a
		}
	}
}

// resolveJoinPathRaw re-evaluates any PowerShell assignment whose Raw
// field holds an unresolved Join-Path expression, now that one-hop
// imports may have filled in the operand it needed.
func (m *Mapper) resolveJoinPathRaw(env map[string]models.VariableAssignment) {
	lookup := func(name string) (string, bool) {
		if a, ok := env[name]; ok {
			return a.Value, true
		}
		return "", false
	}
	for name, a := range env {
		if a.Raw == "" {
			continue
		}
		value, resolved := evalJoinPathWithLookup(a.Raw, lookup)
		if resolved {
			a.Value = value
			a.Raw = ""
			env[name] = a
		}
	}
}

// evalJoinPathWithLookup mirrors parse.EvalJoinPath but resolves
// variable operands through an arbitrary lookup function instead of a
// single flat map, so it can be reused against the Mapper's merged env.
func evalJoinPathWithLookup(args string, lookup func(string) (string, bool)) (string, bool) {
	env := make(map[string]string)
	for _, tok := range strings.Fields(args) {
		name := strings.TrimPrefix(strings.TrimSuffix(tok, ","), "$")
		if v, ok := lookup(name); ok {
			env[name] = v
		}
	}
	return parse.EvalJoinPath(args, env)
}

func flattenEnv(env map[string]models.VariableAssignment) []models.VariableAssignment {
	out := make([]models.VariableAssignment, 0, len(env))
	for _, a := range env {
		out = append(out, a)
	}
	return out
}

func lookupEnv(env []models.VariableAssignment, name string) (string, bool) {
	for _, a := range env {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// resolveNonDynamic attempts direct resolution for a non-dynamic call
// site that has no baseline edge (two-role Reader→Mapper mode).
func (m *Mapper) resolveNonDynamic(cs models.CallSite, env []models.VariableAssignment, seen map[string]bool, res *Result) {
	if candidate, ok := m.substituteAndCanon(cs.RawTarget, env); ok && m.allowList[candidate] {
		m.addEdge(m.makeEdge(cs, candidate, 0.9, "static-direct"), seen, res)
		return
	}
	if canonRaw := m.c.Canonical(cs.RawTarget); m.allowList[canonRaw] {
		m.addEdge(m.makeEdge(cs, canonRaw, 0.9, "static-direct"), seen, res)
		return
	}
	if candidate := m.c.Join(cs.Src, cs.RawTarget); m.allowList[candidate] {
		m.addEdge(m.makeEdge(cs, candidate, 0.9, "static-direct"), seen, res)
		return
	}
	res.Unresolved = append(res.Unresolved, models.UnresolvedCallSite{
		Src: cs.Src, RawTarget: cs.RawTarget, Command: cs.CommandText, Reason: "non-dynamic-unresolved",
	})
}

// resolveDynamic runs the three-stage state machine of spec §4.7 over a
// single dynamic call site: LLM pass 1, observation-augmented retry,
// then heuristic substitution fallback. It returns its outcome rather
// than mutating shared state directly, so Resolve can run it from
// multiple goroutines and commit the results single-threaded afterward.
func (m *Mapper) resolveDynamic(ctx context.Context, cs models.CallSite, env []models.VariableAssignment, batch models.ObservationBatch) (models.Edge, models.UnresolvedCallSite, bool) {
	if target, reasoning, ok := m.llmPass(ctx, cs, env, nil); ok {
		return m.makeEdge(cs, target, 0.7, reasoning), models.UnresolvedCallSite{}, true
	}
	if target, reasoning, ok := m.llmPass(ctx, cs, env, m.buildDirListing(cs, env)); ok {
		return m.makeEdge(cs, target, 0.7, reasoning), models.UnresolvedCallSite{}, true
	}
	if target, ok := m.substituteAndCanon(cs.RawTarget, env); ok {
		canonRaw := m.c.Canonical(cs.RawTarget)
		if target != canonRaw && m.allowList[target] {
			return m.makeEdge(cs, target, 0.7, "local var substitution"), models.UnresolvedCallSite{}, true
		}
	}
	return models.Edge{}, models.UnresolvedCallSite{
		Src: cs.Src, RawTarget: cs.RawTarget, Command: cs.CommandText, Reason: "no-targets-from-LLM",
	}, false
}

func (m *Mapper) makeEdge(cs models.CallSite, dst string, confidence float64, reason string) models.Edge {
	return models.Edge{
		Src: cs.Src, Dst: dst, Kind: cs.Kind, Command: cs.CommandText,
		Dynamic: cs.Dynamic, Resolved: true, Confidence: confidence, Reason: reason,
		Source: models.EdgeFromMapper,
	}
}

func (m *Mapper) addEdge(e models.Edge, seen map[string]bool, res *Result) {
	key := e.Src + "\x00" + e.Dst + "\x00" + string(e.Kind)
	if seen[key] {
		return
	}
	seen[key] = true
	res.Edges = append(res.Edges, e)
}

// substituteAndCanon performs up to five passes of %NAME%/!NAME!/${NAME}/$NAME
// substitution against env, to a fixed point, then canonicalizes.
func (m *Mapper) substituteAndCanon(rawTarget string, env []models.VariableAssignment) (string, bool) {
	tok := rawTarget
	for i := 0; i < 5; i++ {
		next := substituteOnce(tok, env)
		if next == tok {
			break
		}
		tok = next
	}
	if tok == rawTarget {
		return "", false
	}
	return m.c.Canonical(tok), true
}

var (
	pctVarRe  = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)
	bangVarRe = regexp.MustCompile(`!([A-Za-z_][A-Za-z0-9_]*)!`)
	curlyVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	dollarVarRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

func substituteOnce(tok string, env []models.VariableAssignment) string {
	tok = pctVarRe.ReplaceAllStringFunc(tok, func(m string) string {
		name := pctVarRe.FindStringSubmatch(m)[1]
		if v, ok := lookupEnvCI(env, name); ok {
			return v
		}
		return m
	})
	tok = bangVarRe.ReplaceAllStringFunc(tok, func(m string) string {
		name := bangVarRe.FindStringSubmatch(m)[1]
		if v, ok := lookupEnvCI(env, name); ok {
			return v
		}
		return m
	})
	tok = curlyVarRe.ReplaceAllStringFunc(tok, func(m string) string {
		name := curlyVarRe.FindStringSubmatch(m)[1]
		if v, ok := lookupEnv(env, name); ok {
			return v
		}
		return m
	})
	tok = dollarVarRe.ReplaceAllStringFunc(tok, func(m string) string {
		name := dollarVarRe.FindStringSubmatch(m)[1]
		if v, ok := lookupEnv(env, name); ok {
			return v
		}
		return m
	})
	return tok
}

func lookupEnvCI(env []models.VariableAssignment, name string) (string, bool) {
	for _, a := range env {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// buildDirListing derives candidate base directories from the caller's
// folder, path-like env values, literal "name/" substrings of the raw
// target, and "${VAR}/" prefixes where VAR is in env, restricting the
// allow-list to those whose files start with "<dir>/", capped at 50
// files per directory, per spec §4.7 pass 2.
func (m *Mapper) buildDirListing(cs models.CallSite, env []models.VariableAssignment) map[string][]string {
	dirs := make(map[string]bool)
	dirs[dirOf(cs.Src)] = true
	for _, a := range env {
		if strings.ContainsAny(a.Value, "/\\") {
			dirs[dirOf(a.Value)] = true
		}
	}
	for _, part := range strings.Split(cs.RawTarget, "/") {
		if part != "" && !strings.ContainsAny(part, "$%!") {
			dirs[part] = true
		}
	}
	for _, match := range curlyVarRe.FindAllStringSubmatch(cs.RawTarget, -1) {
		if v, ok := lookupEnv(env, match[1]); ok {
			dirs[v] = true
		}
	}

	listing := make(map[string][]string)
	for dir := range dirs {
		prefix := dir + "/"
		var files []string
		for path := range m.allowList {
			if strings.HasPrefix(path, prefix) {
				files = append(files, path)
				if len(files) >= 50 {
					break
				}
			}
		}
		if len(files) > 0 {
			sort.Strings(files)
			listing[dir] = files
		}
	}
	return listing
}

func dirOf(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return "."
}

const mapperSystemPrompt = `You resolve an ambiguous script invocation to a concrete file path.

Return a JSON object: {"targets": [path, ...], "reasoning": "..."}. Only return paths from allowed_paths. If you cannot determine the target with confidence, return an empty targets array.`

type mapperPrompt struct {
	Root         string              `json:"root"`
	Src          string              `json:"src"`
	Command      string              `json:"command"`
	Hints        map[string]string   `json:"hints"`
	AllowedPaths []string            `json:"allowed_paths"`
	Observations map[string][]string `json:"observations,omitempty"`
}

// llmPass issues one LLM resolution call, if the budget allows and the
// client is enabled. observations, when non-nil, is the pass-2 dir
// listing; its presence also includes a short source snippet isn't
// threaded here since the Mapper only holds peek-window text via the
// batch, not per-call-site — callers needing the snippet pass it via
// cs.CommandText, which already carries the full matched line.
func (m *Mapper) llmPass(ctx context.Context, cs models.CallSite, env []models.VariableAssignment, observations map[string][]string) (string, string, bool) {
	if m.llmClient == nil || !m.llmClient.Enabled() {
		return "", "", false
	}
	m.mu.Lock()
	if m.budget != nil && m.budget.MaxToolCalls <= 0 {
		m.mu.Unlock()
		return "", "", false
	}
	if m.budget != nil {
		m.budget.MaxToolCalls--
	}
	m.toolCalls++
	m.mu.Unlock()

	hints := make(map[string]string, len(env))
	for _, a := range env {
		hints[a.Name] = a.Value
	}
	allowed := make([]string, 0, len(m.allowList))
	for p := range m.allowList {
		allowed = append(allowed, p)
	}
	sort.Strings(allowed)

	prompt := mapperPrompt{
		Root: m.root, Src: cs.Src, Command: cs.CommandText, Hints: hints,
		AllowedPaths: allowed, Observations: observations,
	}
	data, err := json.Marshal(prompt)
	if err != nil {
		return "", "", false
	}
	reply := m.llmClient.Complete(ctx, mapperSystemPrompt, string(data))

	var parsed struct {
		Targets   []string `json:"targets"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return "", "", false
	}
	for _, t := range parsed.Targets {
		canonT := m.c.Canonical(t)
		if m.allowList[canonT] {
			return canonT, parsed.Reasoning, true
		}
	}
	return "", "", false
}
