// Package planner builds the Read Manifest that drives the Reader: a
// prioritized worklist plus the policy and budget defaults for the rest
// of the run. Grounded on the corpus's orchestrator-stage pattern
// (rohankatakam-coderisk's internal/linking two-phase plan/execute
// split), generalized from commit/file entities to script-file entities.
package planner

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
)

const (
	prioritySeed       = 500
	priorityEntryPoint = 100
	priorityDefault    = 10
	worklistCap        = 200
)

var entryPointBasenames = map[string]bool{
	"run.sh":    true,
	"main.bat":  true,
	"start.cmd": true,
}

// LoadSeeds reads an optional seeds.txt or .seeds file from root: one
// path per line, '#' comments skipped, a leading "./" stripped. A
// missing file yields an empty, non-error seed set.
func LoadSeeds(root string) (map[string]bool, error) {
	seeds := make(map[string]bool)
	for _, name := range []string{"seeds.txt", ".seeds"} {
		f, err := os.Open(filepath.Join(root, name))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			line = strings.TrimPrefix(line, "./")
			seeds[line] = true
		}
		f.Close()
		return seeds, scanner.Err()
	}
	return seeds, nil
}

// Build assembles the Read Manifest from the indexed files, the seed
// set, and the sources of any baseline dynamic-unresolved call sites,
// per spec §4.5.
func Build(files []models.ScriptFile, seeds map[string]bool, dynamicUnresolvedSrcs []string, windowsish bool) *models.ReadManifest {
	m := models.NewReadManifest()
	m.Windowsish = windowsish

	byPath := make(map[string]models.ScriptFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	worklistSet := make(map[string]bool)
	for path := range byPath {
		priority := priorityDefault
		if seeds[path] {
			priority = prioritySeed
		} else if entryPointBasenames[filepath.Base(path)] {
			priority = priorityEntryPoint
		}
		m.Priority[path] = priority
		if priority > priorityDefault || seeds[path] {
			worklistSet[path] = true
		}
	}
	for _, src := range dynamicUnresolvedSrcs {
		if _, ok := byPath[src]; ok {
			worklistSet[src] = true
		}
	}
	// Entry points and seeded files are always on the worklist even at
	// default priority, since step 4 is a union, not a priority filter.
	for path := range byPath {
		if seeds[path] || entryPointBasenames[filepath.Base(path)] {
			worklistSet[path] = true
		}
	}

	m.Worklist = sortedByPriorityThenPath(worklistSet, m.Priority)
	if len(m.Worklist) > worklistCap {
		m.Worklist = m.Worklist[:worklistCap]
	}
	for _, f := range files {
		m.PeekWindow[f.Path] = 4096
	}
	return m
}

// Reorder lets an optional LLM planner resuggest worklist order. Only
// paths present in allowList survive; a disabled client is a no-op
// identity function, per the Reader/Mapper contract that LLM assistance
// is always optional.
func Reorder(ctx context.Context, client *llm.Client, manifest *models.ReadManifest, unresolved []models.UnresolvedCallSite, allowList map[string]bool) {
	if client == nil || !client.Enabled() || len(unresolved) == 0 {
		return
	}
	reply := client.Complete(ctx, plannerSystemPrompt, plannerUserPrompt(unresolved))
	suggested := parsePlannerReply(reply)
	if len(suggested) == 0 {
		return
	}
	var reordered []string
	seen := make(map[string]bool)
	for _, p := range suggested {
		p = strings.TrimPrefix(p, "./")
		if allowList[p] && !seen[p] {
			reordered = append(reordered, p)
			seen[p] = true
		}
	}
	for _, p := range manifest.Worklist {
		if !seen[p] {
			reordered = append(reordered, p)
			seen[p] = true
		}
	}
	if len(reordered) > worklistCap {
		reordered = reordered[:worklistCap]
	}
	manifest.Worklist = reordered
}

const plannerSystemPrompt = `You help prioritize which script files to read first when building a call graph.

Return a JSON object: {"worklist": [path, ...], "reasoning": "..."}. Only list paths you believe are most likely to resolve the given unresolved call sites; omit paths you have no opinion on.`

type plannerUnresolvedEntry struct {
	Src     string `json:"src"`
	Command string `json:"command"`
}

func plannerUserPrompt(unresolved []models.UnresolvedCallSite) string {
	entries := make([]plannerUnresolvedEntry, 0, len(unresolved))
	for _, u := range unresolved {
		entries = append(entries, plannerUnresolvedEntry{Src: u.Src, Command: u.Command})
	}
	payload := struct {
		Unresolved []plannerUnresolvedEntry `json:"unresolved"`
	}{Unresolved: entries}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parsePlannerReply decodes the planner's JSON reply. A reply that
// isn't valid JSON, or is missing the worklist field, yields no
// reordering — the Reorder caller falls back to the existing manifest
// order, per the "any non-JSON response is treated as empty" contract.
func parsePlannerReply(reply string) []string {
	var parsed struct {
		Worklist []string `json:"worklist"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil
	}
	return parsed.Worklist
}

func sortedByPriorityThenPath(set map[string]bool, priority map[string]int) []string {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		pi, pj := priority[paths[i]], priority[paths[j]]
		if pi != pj {
			return pi > pj
		}
		return paths[i] < paths[j]
	})
	return paths
}
