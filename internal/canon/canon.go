// Package canon normalizes path strings into the canonical relative form
// the rest of the pipeline agrees on: forward slashes, no leading "./",
// no doubled separators, "." and ".." resolved, and (for bundles that
// declare themselves Windows) lower-cased.
package canon

import (
	"path"
	"strings"
)

// Canonicalizer normalizes paths under a single case-folding policy.
// It is immutable after construction and safe for concurrent use.
type Canonicalizer struct {
	windowsish bool
}

// New returns a Canonicalizer. windowsish enables case-folding, matching
// the bundle's declared platform.
func New(windowsish bool) *Canonicalizer {
	return &Canonicalizer{windowsish: windowsish}
}

// Canonical normalizes p into the canonical relative form. Absolute
// paths are slash-normalized and case-folded per policy but otherwise
// left as-is; callers decide whether to keep or discard them.
func (c *Canonicalizer) Canonical(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if p == "." || p == "" {
		p = "."
	} else {
		p = path.Clean(p)
	}
	p = strings.TrimPrefix(p, "./")
	if c.windowsish {
		p = strings.ToLower(p)
	}
	return p
}

// Windowsish reports the canonicalizer's case-folding policy.
func (c *Canonicalizer) Windowsish() bool {
	return c.windowsish
}

// Join canonicalizes the result of joining base and rel, treating rel as
// relative to base's directory. Used for caller-relative call-site
// resolution.
func (c *Canonicalizer) Join(base, rel string) string {
	dir := path.Dir(strings.ReplaceAll(base, "\\", "/"))
	if dir == "." {
		return c.Canonical(rel)
	}
	return c.Canonical(path.Join(dir, rel))
}
