package parse

import (
	"regexp"
	"strings"

	"github.com/arvidnilsson/depscan/internal/models"
)

var (
	perlSystemRe    = regexp.MustCompile(`(?:system|exec)\s*\(?\s*("([^"]*)"|'([^']*)')`)
	perlBacktickRe  = regexp.MustCompile("`([^`]*)`")
	perlRequireRe   = regexp.MustCompile(`(?:require|do)\s+("([^"]*)"|'([^']*)')`)
	perlDynamicSign = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*|\$\(`)
)

// ParsePerl extracts call sites from Perl source, per spec §4.3: system()
// and exec() calls whose first argument is a literal ending in a known
// script extension, plus backtick commands and require/do file loads.
func ParsePerl(src string) []models.CallSite {
	var sites []models.CallSite
	for _, raw := range Lines(src) {
		line := StripLineComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		dynamic := isPerlDynamic(line)

		if m := perlSystemRe.FindStringSubmatch(line); m != nil {
			target := firstNonEmpty(m[2], m[3])
			if scriptExtRe.MatchString(strings.ToLower(strings.TrimSpace(target))) {
				sites = append(sites, makePerlSite(line, target, models.KindCall, dynamic))
				continue
			}
		}
		if m := perlRequireRe.FindStringSubmatch(line); m != nil {
			target := firstNonEmpty(m[2], m[3])
			if Plausible(target) {
				sites = append(sites, makePerlSite(line, target, models.KindSource, dynamic))
				continue
			}
		}
		if m := perlBacktickRe.FindStringSubmatch(line); m != nil {
			fields := strings.Fields(m[1])
			if len(fields) > 0 && Plausible(fields[0]) {
				sites = append(sites, makePerlSite(line, fields[0], models.KindCall, true))
				continue
			}
		}
	}
	return sites
}

func makePerlSite(line, target string, kind models.CallKind, dynamic bool) models.CallSite {
	conf := 0.9
	if dynamic {
		conf = 0.5
	}
	return models.CallSite{
		RawTarget:   strings.TrimSpace(target),
		CommandText: strings.TrimSpace(line),
		Kind:        kind,
		Dynamic:     dynamic,
		Confidence:  conf,
	}
}

func isPerlDynamic(line string) bool {
	return perlDynamicSign.MatchString(line) || strings.Contains(line, "`")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
