package canon

import "testing"

func TestCanonicalIdempotent(t *testing.T) {
	c := New(false)
	cases := []string{
		`./utils/prep.sh`,
		`lib\\load.sh`,
		`a//b///c.sh`,
		`./a/./b/../c.sh`,
		`Run.cmd`,
	}
	for _, in := range cases {
		once := c.Canonical(in)
		twice := c.Canonical(once)
		if once != twice {
			t.Errorf("canonical(%q) not idempotent: %q vs %q", in, once, twice)
		}
	}
}

func TestCaseFoldingOnlyWhenWindowsish(t *testing.T) {
	posix := New(false)
	if got := posix.Canonical("Run.CMD"); got != "Run.CMD" {
		t.Errorf("posix canonicalizer should not lower-case, got %q", got)
	}

	win := New(true)
	if got := win.Canonical("Run.CMD"); got != "run.cmd" {
		t.Errorf("windows canonicalizer should lower-case, got %q", got)
	}
}

func TestJoinCallerRelative(t *testing.T) {
	c := New(false)
	got := c.Join("bin/Run.cmd", "step.cmd")
	if got != "bin/step.cmd" {
		t.Errorf("expected bin/step.cmd, got %q", got)
	}
}
