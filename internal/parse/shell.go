package parse

import (
	"regexp"
	"strings"

	"github.com/arvidnilsson/depscan/internal/models"
)

var (
	shAssignRe       = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*=`)
	shDynamicMarkRe  = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*|` + "`" + `|\$\(`)
	shInterpCallRe   = regexp.MustCompile(`(?:^|[;&|]\s*)(bash|sh|ksh)\s+("?)([^\s"]+)("?)`)
	shDotSourceRe    = regexp.MustCompile(`(?:^|[;&|]\s*)(\.|source)\s+("?)([^\s"]+)("?)`)
	shDirectCallRe   = regexp.MustCompile(`(?:^|[;&|]\s*)("?)((?:\./|\$\{?[A-Za-z_][A-Za-z0-9_]*\}?/)[^\s"]+\.(?:sh|bash|ksh))("?)`)
	shInterpVarFormR = regexp.MustCompile(`(\$[A-Za-z_][A-Za-z0-9_]*)\s+"?(\$[A-Za-z_][A-Za-z0-9_]*|\$\{[A-Za-z_][A-Za-z0-9_]*\})"?`)
	shBareVarCallRe  = regexp.MustCompile(`(?:^|[;&|]\s*)"?(\$[A-Za-z_][A-Za-z0-9_]*)"?(?:\s+"?\$[A-Za-z_][A-Za-z0-9_]*"?)*\s*$`)
)

// ParseShell extracts call sites from sh/bash/ksh source, per spec §4.3.
func ParseShell(src string) []models.CallSite {
	var sites []models.CallSite
	for _, raw := range Lines(src) {
		line := StripLineComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if shAssignRe.MatchString(line) {
			// An assignment like FOO=./x.sh is not itself a call site,
			// per spec's "skip destinations inside an assignment" rule.
			// A trailing command after ';' on the same line is still
			// eligible, so fall through to the matchers below which
			// anchor on statement separators, not line start.
		}
		dynamic := isShellDynamic(line)

		if m := shDotSourceRe.FindStringSubmatch(line); m != nil && !withinAssignment(line, m[3]) {
			sites = append(sites, makeShellSite(line, m[3], models.KindSource, dynamic))
			continue
		}
		if m := shInterpCallRe.FindStringSubmatch(line); m != nil && !withinAssignment(line, m[3]) {
			sites = append(sites, makeShellSite(line, m[3], models.KindCall, dynamic))
			continue
		}
		if m := shDirectCallRe.FindStringSubmatch(line); m != nil && !withinAssignment(line, m[2]) {
			sites = append(sites, makeShellSite(line, m[2], models.KindCall, dynamic))
			continue
		}
		if m := shInterpVarFormR.FindStringSubmatch(line); m != nil {
			// $INTERP "$TARGET" form: interpreter-hop where both the
			// interpreter and the target are variables.
			sites = append(sites, makeShellSite(line, m[2], models.KindCall, true))
			continue
		}
		if m := shBareVarCallRe.FindStringSubmatch(line); m != nil && !shAssignRe.MatchString(line) {
			// A bare variable in command position, e.g. `"$TARGET" "$TARGET"`:
			// the variable itself is invoked directly with no interpreter
			// or dot-source keyword.
			sites = append(sites, makeShellSite(line, m[1], models.KindCall, true))
			continue
		}
	}
	return sites
}

func makeShellSite(line, target string, kind models.CallKind, dynamic bool) models.CallSite {
	conf := 0.9
	if dynamic {
		conf = 0.5
	}
	return models.CallSite{
		RawTarget:   strings.Trim(target, `"'`),
		CommandText: strings.TrimSpace(line),
		Kind:        kind,
		Dynamic:     dynamic,
		Confidence:  conf,
	}
}

func isShellDynamic(line string) bool {
	if shDynamicMarkRe.MatchString(line) {
		return true
	}
	return strings.Contains(line, "eval")
}

// withinAssignment reports whether target appears as the RHS of a
// `NAME=value` assignment earlier on the same line, e.g. `FOO=./x.sh`.
func withinAssignment(line, target string) bool {
	idx := strings.Index(line, target)
	if idx <= 0 {
		return false
	}
	prefix := line[:idx]
	return strings.HasSuffix(prefix, "=") && shAssignRe.MatchString(line)
}
