package parse

import (
	"regexp"
	"strings"

	"github.com/arvidnilsson/depscan/internal/models"
)

var (
	psDotSourceRe   = regexp.MustCompile(`^\s*\.\s+(.+)$`)
	psAmpCallRe     = regexp.MustCompile(`^\s*&\s+(.+)$`)
	psAssignLitRe   = regexp.MustCompile(`^\s*\$([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(['"][^'"]*['"])\s*$`)
	psAssignJoinRe  = regexp.MustCompile(`(?i)^\s*\$([A-Za-z_][A-Za-z0-9_]*)\s*=\s*Join-Path\s+(.+)$`)
	psDynamicWordRe = regexp.MustCompile(`(?i)Join-Path|Resolve-Path|Invoke-Expression`)
	psVarRefRe      = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`)
)

// ParsePowerShell extracts call sites and variable assignments from ps1
// source, per spec §4.3. Join-Path assignments are evaluated eagerly
// against the file's own local, sequentially-built environment; operands
// that are not yet known (because they come from a one-hop dot-sourced
// import) are left in Raw for the Mapper's env_for to re-evaluate once
// that import is merged in.
func ParsePowerShell(src string) ([]models.CallSite, []models.VariableAssignment) {
	env := map[string]string{}
	var sites []models.CallSite
	var assigns []models.VariableAssignment

	for _, raw := range Lines(src) {
		line := StripLineComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := psAssignLitRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			value := trimQuotes(m[2])
			env[name] = value
			assigns = append(assigns, models.VariableAssignment{Name: name, Value: value, Precedence: 10})
			continue
		}
		if m := psAssignJoinRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			value, resolved := EvalJoinPath(m[2], env)
			env[name] = value
			va := models.VariableAssignment{Name: name, Value: value, Precedence: 9}
			if !resolved {
				va.Raw = m[2]
			}
			assigns = append(assigns, va)
			continue
		}

		dynamic := isPowerShellDynamic(line)
		if m := psDotSourceRe.FindStringSubmatch(line); m != nil {
			sites = append(sites, makePowerShellSite(line, m[1], models.KindSource, dynamic))
			continue
		}
		if m := psAmpCallRe.FindStringSubmatch(line); m != nil {
			sites = append(sites, makePowerShellSite(line, m[1], models.KindCall, dynamic))
			continue
		}
	}
	return sites, assigns
}

func makePowerShellSite(line, target string, kind models.CallKind, dynamic bool) models.CallSite {
	target = strings.TrimSpace(target)
	target = trimQuotes(target)
	conf := 0.9
	if dynamic {
		conf = 0.5
	}
	return models.CallSite{
		RawTarget:   target,
		CommandText: strings.TrimSpace(line),
		Kind:        kind,
		Dynamic:     dynamic,
		Confidence:  conf,
	}
}

func isPowerShellDynamic(line string) bool {
	trimmed := strings.TrimSpace(line)
	target := trimmed
	if m := psDotSourceRe.FindStringSubmatch(trimmed); m != nil {
		target = strings.TrimSpace(m[1])
	} else if m := psAmpCallRe.FindStringSubmatch(trimmed); m != nil {
		target = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(target, "$") {
		return true
	}
	if strings.Contains(line, "$(") {
		return true
	}
	if psDynamicWordRe.MatchString(line) {
		return true
	}
	return psVarRefRe.MatchString(line)
}

// EvalJoinPath evaluates a "Join-Path A B [...]" argument list, where
// each operand is a quoted literal, $PSScriptRoot (treated as "."), or a
// previously-assigned $NAME looked up in env. Returns the joined path and
// whether every operand was resolvable.
func EvalJoinPath(args string, env map[string]string) (string, bool) {
	parts := splitJoinPathArgs(args)
	var segs []string
	resolved := true
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case strings.EqualFold(p, "$PSScriptRoot"):
			segs = append(segs, ".")
		case strings.HasPrefix(p, "'") || strings.HasPrefix(p, `"`):
			segs = append(segs, trimQuotes(p))
		case strings.HasPrefix(p, "$"):
			name := strings.TrimPrefix(p, "$")
			if v, ok := env[name]; ok {
				segs = append(segs, v)
			} else {
				resolved = false
				segs = append(segs, p)
			}
		default:
			segs = append(segs, p)
		}
	}
	joined := strings.Join(segs, "/")
	joined = strings.TrimPrefix(joined, "./")
	return joined, resolved
}

func splitJoinPathArgs(s string) []string {
	s = strings.TrimSpace(s)
	var parts []string
	var cur strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			cur.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			cur.WriteByte(c)
		case c == ' ' || c == ',':
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
