// Package parse implements the per-language static parsers that extract
// call sites and variable assignments from shell, batch, PowerShell,
// Perl, and Python source. Each parser scans line-oriented source after
// comment stripping and emits models.CallSite / models.VariableAssignment
// records; none of them execute the scripts they read.
package parse

import (
	"regexp"
	"strings"
)

// scriptExtRe matches a plausible script-file suffix at the end of a token,
// shared by the plausibility filter across all parsers.
var scriptExtRe = regexp.MustCompile(`\.(sh|bash|ksh|bat|cmd|ps1|pl|py)$`)

var pureVarRefRe = regexp.MustCompile(`^(\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*|%[A-Za-z_][A-Za-z0-9_]*%|![A-Za-z_][A-Za-z0-9_]*!)$`)

// Plausible implements the shared plausibility filter from spec §4.3: a
// token is a plausible target iff it contains a path separator, ends in
// a known script extension, or is a pure variable reference.
func Plausible(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if strings.ContainsAny(token, "/\\") {
		return true
	}
	if scriptExtRe.MatchString(strings.ToLower(token)) {
		return true
	}
	return pureVarRefRe.MatchString(token)
}

// StripLineComment strips a whole-line comment. Shell/cmd/ps1/perl/python
// use '#' (cmd uses "rem"/"::" handled separately by the cmd parser); a
// leading "//" is also treated as a comment marker for parsers that share
// this helper loosely (no language in scope uses "//" for code, so this
// never clips real content).
func StripLineComment(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
		return ""
	}
	return line
}

// Lines splits src into lines, preserving line order but not line
// terminators.
func Lines(src string) []string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return strings.Split(src, "\n")
}

// trimQuotes strips a single layer of matching quotes from s.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
