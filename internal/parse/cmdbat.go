package parse

import (
	"regexp"
	"strings"

	"github.com/arvidnilsson/depscan/internal/models"
)

var (
	cmdSetlocalRe  = regexp.MustCompile(`(?i)^\s*setlocal\b`)
	cmdSetRe       = regexp.MustCompile(`(?i)^\s*set\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)
	cmdForRe       = regexp.MustCompile(`(?i)^\s*for\s+%%([A-Za-z])\s+in\s*\(([^)]*)\)\s*do\s*(.*)$`)
	cmdCallRe      = regexp.MustCompile(`(?i)^\s*(call|start)\s+(.*)$`)
	cmdPctPctRe    = regexp.MustCompile(`%%([A-Za-z])`)
	cmdDelayedRe   = regexp.MustCompile(`!([A-Za-z_][A-Za-z0-9_]*)!`)
	cmdPercentVarR = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)
	cmdDynamicMark = regexp.MustCompile(`%%[A-Za-z]|![A-Za-z_][A-Za-z0-9_]*!|%[A-Za-z_][A-Za-z0-9_]*%`)
)

// cmdState carries the order-sensitive env/loop_vars dictionaries across
// lines of a single file, per spec §4.3's CMD expansion rules.
type cmdState struct {
	env      map[string]string // upper-cased names, precedence 10
	loopVars map[string]string
}

func newCmdState() *cmdState {
	return &cmdState{env: map[string]string{}, loopVars: map[string]string{}}
}

// expand applies %%X, !NAME!, %NAME% substitution up to four passes to a
// fixed point, per spec §4.3.
func (s *cmdState) expand(tok string) string {
	for i := 0; i < 4; i++ {
		next := cmdPctPctRe.ReplaceAllStringFunc(tok, func(m string) string {
			letter := cmdPctPctRe.FindStringSubmatch(m)[1]
			if v, ok := s.loopVars[letter]; ok {
				return v
			}
			return m
		})
		next = cmdDelayedRe.ReplaceAllStringFunc(next, func(m string) string {
			name := strings.ToUpper(cmdDelayedRe.FindStringSubmatch(m)[1])
			if v, ok := s.env[name]; ok {
				return v
			}
			return m
		})
		next = cmdPercentVarR.ReplaceAllStringFunc(next, func(m string) string {
			name := strings.ToUpper(cmdPercentVarR.FindStringSubmatch(m)[1])
			if v, ok := s.env[name]; ok {
				return v
			}
			return m
		})
		if next == tok {
			return next
		}
		tok = next
	}
	return tok
}

// ParseCmd extracts call sites and variable assignments from CMD/batch
// source, processing lines strictly top-to-bottom so that earlier `set`
// and `for` statements affect later expansion, per spec §4.3 and §5.
func ParseCmd(src string) ([]models.CallSite, []models.VariableAssignment) {
	st := newCmdState()
	var sites []models.CallSite
	var assigns []models.VariableAssignment

	for _, raw := range Lines(src) {
		line := stripCmdComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if cmdSetlocalRe.MatchString(line) {
			continue
		}
		processCmdLine(st, line, &sites, &assigns)
	}
	return sites, assigns
}

func processCmdLine(st *cmdState, line string, sites *[]models.CallSite, assigns *[]models.VariableAssignment) {
	if m := cmdForRe.FindStringSubmatch(line); m != nil {
		letter, val, rest := m[1], m[2], m[3]
		st.loopVars[letter] = st.expand(val)
		if strings.TrimSpace(rest) != "" {
			processCmdLine(st, rest, sites, assigns)
		}
		return
	}
	if m := cmdSetRe.FindStringSubmatch(line); m != nil {
		name := strings.ToUpper(m[1])
		value := st.expand(strings.TrimSpace(m[2]))
		st.env[name] = value
		*assigns = append(*assigns, models.VariableAssignment{Name: name, Value: value, Precedence: 10})
		return
	}
	if m := cmdCallRe.FindStringSubmatch(line); m != nil {
		target := strings.TrimSpace(m[2])
		target = strings.Trim(target, `"`)
		dynamic := cmdDynamicMark.MatchString(line)
		conf := 0.9
		if dynamic {
			conf = 0.5
		}
		*sites = append(*sites, models.CallSite{
			RawTarget:   target,
			CommandText: strings.TrimSpace(line),
			Kind:        models.KindCall,
			Dynamic:     dynamic,
			Confidence:  conf,
		})
	}
}

// stripCmdComment strips "rem" and "::" whole-line comments, in addition
// to the shared '#' convention, since batch uses its own markers.
func stripCmdComment(line string) string {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "rem ") || lower == "rem" || strings.HasPrefix(trimmed, "::") {
		return ""
	}
	return StripLineComment(line)
}
