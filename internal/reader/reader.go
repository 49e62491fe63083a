// Package reader executes the Read Manifest: it visits files in
// worklist order, decodes a peek window of each, extracts per-language
// observations, and optionally merges LLM-suggested variable hints.
// Grounded on the corpus's sequential-phase-driver idiom
// (rohankatakam-coderisk's internal/linking orchestrator) generalized
// from git-diff hunks to script-file peek windows.
package reader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
	"github.com/arvidnilsson/depscan/internal/parse"
)

const (
	defaultPeekWindow   = 4096
	promotedPeekWindow  = 8192
	hintPrecedence      = 5
	shValueGrammarChars = `[A-Za-z0-9_./${}-]+`
)

var (
	shAssignHintRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)=(` + shValueGrammarChars + `)\s*$`)
)

// Run executes the manifest over root, reading each worklist entry in
// (worklist, priority-desc, lex) order up to MaxFiles, and returns the
// Observation Batch. llmClient may be disabled; hints are then simply
// never requested.
func Run(ctx context.Context, llmClient *llm.Client, root string, manifest *models.ReadManifest, files map[string]models.ScriptFile) models.ObservationBatch {
	order := orderedWorklist(manifest)
	if len(order) > manifest.Budget.MaxFiles {
		order = order[:manifest.Budget.MaxFiles]
	}

	var batch models.ObservationBatch
	for _, path := range order {
		sf, ok := files[path]
		if !ok {
			continue
		}
		window := manifest.PeekWindow[path]
		if window == 0 {
			window = defaultPeekWindow
		}
		src, err := readPeek(filepath.Join(root, sf.RawPath), window)
		if err != nil {
			continue
		}
		batch.Files = append(batch.Files, sf)

		callSites, assigns := extract(sf.Language, path, src)
		batch.CallSites = append(batch.CallSites, callSites...)
		batch.EnvVars = append(batch.EnvVars, assigns...)

		if manifest.LLMReaderHints && sf.Language == models.LangShell && llmClient.Enabled() {
			batch.EnvVars = append(batch.EnvVars, requestHints(ctx, llmClient, path, src)...)
		}
	}
	return batch
}

// orderedWorklist sorts the manifest's worklist by (priority-desc, lex),
// matching the Reader's deterministic ordering invariant.
func orderedWorklist(manifest *models.ReadManifest) []string {
	order := append([]string(nil), manifest.Worklist...)
	sort.Slice(order, func(i, j int) bool {
		pi, pj := manifest.Priority[order[i]], manifest.Priority[order[j]]
		if pi != pj {
			return pi > pj
		}
		return order[i] < order[j]
	})
	return order
}

// readPeek reads up to window bytes of path and lossily decodes it as
// UTF-8, per spec §4.6.
func readPeek(path string, window int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, window)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}
	return toValidUTF8(buf[:n]), nil
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// extract dispatches to the Reader's own per-language observation
// extraction, distinct from the Static Graph Builder's parse pass: this
// one runs over a peek window rather than the full file, and for sh
// uses the conservative value grammar from spec §4.6 rather than the
// Static Graph Builder's own assignment rules.
func extract(lang models.Language, path, src string) ([]models.CallSite, []models.VariableAssignment) {
	switch lang {
	case models.LangShell:
		return extractShell(path, src)
	case models.LangCmd:
		sites, assigns := parse.ParseCmd(src)
		return tagSites(path, sites), tagAssigns(path, assigns)
	case models.LangPS1:
		sites, assigns := parse.ParsePowerShell(src)
		return tagSites(path, sites), tagAssigns(path, assigns)
	default:
		return nil, nil
	}
}

// extractShell re-implements the sh assignment grammar at the Reader's
// conservative precision: a value is accepted only if it matches
// [A-Za-z0-9_./${}-]+ and contains neither '(' nor a backtick, which
// rules out capturing command substitutions as plain values.
func extractShell(path, src string) ([]models.CallSite, []models.VariableAssignment) {
	var assigns []models.VariableAssignment
	for _, line := range parse.Lines(src) {
		line = parse.StripLineComment(line)
		m := shAssignHintRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.ContainsAny(m[2], "(`") {
			continue
		}
		assigns = append(assigns, models.VariableAssignment{
			ScopePath:  path,
			Name:       m[1],
			Value:      m[2],
			Precedence: 10,
		})
	}
	sites := parse.ParseShell(src)
	return tagSites(path, sites), assigns
}

func tagSites(path string, sites []models.CallSite) []models.CallSite {
	for i := range sites {
		sites[i].Src = path
	}
	return sites
}

func tagAssigns(path string, assigns []models.VariableAssignment) []models.VariableAssignment {
	for i := range assigns {
		assigns[i].ScopePath = path
	}
	return assigns
}

const readerHintSystemPrompt = `You extract path-relevant shell variable values from a short script snippet.

Return a JSON object: {"hints": {"VARNAME": "value", ...}, "reasoning": "..."}. Each value must match [A-Za-z0-9_./-]. Only include variables you are confident about.`

// requestHints asks the LLM for variable hints over a redacted snippet,
// merging any at precedence 5 per spec §4.6. A disabled or failing
// client yields no hints; this is never a hard requirement for the
// Mapper to make progress.
func requestHints(ctx context.Context, client *llm.Client, path, snippet string) []models.VariableAssignment {
	reply := client.Complete(ctx, readerHintSystemPrompt, redact(snippet))
	hints := parseHints(reply)
	if len(hints) == 0 {
		return nil
	}
	out := make([]models.VariableAssignment, 0, len(hints))
	for name, value := range hints {
		if !hintValueRe.MatchString(value) {
			continue
		}
		out = append(out, models.VariableAssignment{
			ScopePath:  path,
			Name:       name,
			Value:      value,
			Precedence: hintPrecedence,
		})
	}
	return out
}

var hintValueRe = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// parseHints decodes the Reader hint LLM reply. A non-JSON or
// missing-field reply yields no hints, per the "any non-JSON response
// is treated as empty" contract.
func parseHints(reply string) map[string]string {
	var parsed struct {
		Hints map[string]string `json:"hints"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil
	}
	return parsed.Hints
}

// redact strips apparent secret-looking assignments (API keys, tokens,
// passwords) from a snippet before it's sent to an LLM collaborator.
func redact(snippet string) string {
	lines := parse.Lines(snippet)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "password") || strings.Contains(lower, "secret") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
