package parse

import "testing"

func TestParseShell_LinearDirectCall(t *testing.T) {
	sites := ParseShell("./utils/prep.sh\n")
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d", len(sites))
	}
	s := sites[0]
	if s.RawTarget != "./utils/prep.sh" || s.Kind != "call" || s.Dynamic {
		t.Fatalf("unexpected site: %+v", s)
	}
}

func TestParseShell_VariableIndirection(t *testing.T) {
	src := "BASE=\"./lib\"\nNAME=\"load.sh\"\nTARGET=\"$BASE/$NAME\"\n\"$TARGET\" \"$TARGET\"\n"
	sites := ParseShell(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d: %+v", len(sites), sites)
	}
	if !sites[0].Dynamic {
		t.Fatalf("expected dynamic site, got %+v", sites[0])
	}
}

func TestParseShell_InterpreterHopViaVariables(t *testing.T) {
	src := `TARGET="./tools/worker.py"; INTERP="python"; $INTERP "$TARGET"`
	sites := ParseShell(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d: %+v", len(sites), sites)
	}
	if !sites[0].Dynamic || sites[0].Kind != "call" {
		t.Fatalf("unexpected site: %+v", sites[0])
	}
}

func TestParseShell_AssignmentRHSNotACallSite(t *testing.T) {
	sites := ParseShell("FOO=./x.sh\n")
	if len(sites) != 0 {
		t.Fatalf("assignment RHS should not be a call site, got %+v", sites)
	}
}

func TestParseCmd_DelayedExpansionWithFor(t *testing.T) {
	src := "set D=bin\nfor %%F in (step.cmd) do set T=!D!\\%%F\ncall \"!T!\"\n"
	sites, assigns := ParseCmd(src)
	if len(assigns) == 0 {
		t.Fatalf("expected at least one assignment")
	}
	if len(sites) != 1 {
		t.Fatalf("want 1 call site, got %d: %+v", len(sites), sites)
	}
	if sites[0].RawTarget != "!T!" {
		t.Fatalf("expected raw unexpanded target !T!, got %q", sites[0].RawTarget)
	}
	if !sites[0].Dynamic {
		t.Fatalf("expected dynamic site, got %+v", sites[0])
	}
	var tVal string
	for _, a := range assigns {
		if a.Name == "T" {
			tVal = a.Value
		}
	}
	if tVal != `bin\step.cmd` {
		t.Fatalf("expected T to expand to bin\\step.cmd via fixed-point substitution, got %q", tVal)
	}
}

func TestParseCmd_RemAndColonColonComments(t *testing.T) {
	src := "rem this is a comment\n:: also a comment\ncall step.cmd\n"
	sites, _ := ParseCmd(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d", len(sites))
	}
}

func TestParsePowerShell_DotSourceViaJoinPathVariable(t *testing.T) {
	src := "$m = Join-Path $PSScriptRoot 'Utils.ps1'\n. $m\n"
	sites, assigns := ParsePowerShell(src)
	if len(assigns) != 1 || assigns[0].Name != "m" {
		t.Fatalf("expected one assignment to $m, got %+v", assigns)
	}
	if assigns[0].Value != "Utils.ps1" {
		t.Fatalf("expected Join-Path to resolve to Utils.ps1, got %q", assigns[0].Value)
	}
	if assigns[0].Raw != "" {
		t.Fatalf("expected fully-resolved assignment to have empty Raw, got %q", assigns[0].Raw)
	}
	if len(sites) != 1 || sites[0].Kind != "source" || !sites[0].Dynamic {
		t.Fatalf("unexpected sites: %+v", sites)
	}
	if sites[0].RawTarget != "$m" {
		t.Fatalf("expected raw target $m, got %q", sites[0].RawTarget)
	}
}

func TestParsePowerShell_JoinPathWithUnresolvedOperandKeepsRaw(t *testing.T) {
	src := "$m = Join-Path $Imported 'Utils.ps1'\n"
	_, assigns := ParsePowerShell(src)
	if len(assigns) != 1 {
		t.Fatalf("expected one assignment, got %+v", assigns)
	}
	if assigns[0].Raw == "" {
		t.Fatalf("expected Raw to be populated when an operand is unresolved, got %+v", assigns[0])
	}
}

func TestParsePerl_SystemWithLiteralTarget(t *testing.T) {
	sites := ParsePerl(`system("./scripts/build.pl");`)
	if len(sites) != 1 || sites[0].RawTarget != "./scripts/build.pl" || sites[0].Dynamic {
		t.Fatalf("unexpected sites: %+v", sites)
	}
}

func TestParsePerl_DynamicBacktick(t *testing.T) {
	sites := ParsePerl("my $out = `$CMD arg1`;")
	if len(sites) != 1 || !sites[0].Dynamic {
		t.Fatalf("unexpected sites: %+v", sites)
	}
}

func TestParsePython_SubprocessRunWithLiteralList(t *testing.T) {
	src := `
import subprocess
subprocess.run(["./tools/worker.sh", "--flag"])
`
	sites := ParsePython(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d: %+v", len(sites), sites)
	}
	if sites[0].RawTarget != "./tools/worker.sh" || sites[0].Dynamic {
		t.Fatalf("unexpected site: %+v", sites[0])
	}
}

func TestParsePython_SubprocessRunWithInterpreterPrefixExtractsScriptToken(t *testing.T) {
	src := `
import subprocess
subprocess.run(["bash", "./tools/worker.sh"])
`
	sites := ParsePython(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d: %+v", len(sites), sites)
	}
	if sites[0].RawTarget != "./tools/worker.sh" || sites[0].Dynamic {
		t.Fatalf("expected the script token past the interpreter name, got %+v", sites[0])
	}
}

func TestParsePython_SubprocessCallWithDynamicArgIsUnresolved(t *testing.T) {
	src := `
import subprocess
subprocess.call([cmd_name, "--flag"])
`
	sites := ParsePython(src)
	if len(sites) != 1 {
		t.Fatalf("want 1 site, got %d: %+v", len(sites), sites)
	}
	if !sites[0].Dynamic || sites[0].RawTarget != "" {
		t.Fatalf("expected dynamic unresolved site, got %+v", sites[0])
	}
}

func TestPlausible(t *testing.T) {
	cases := map[string]bool{
		"./utils/prep.sh": true,
		"load.sh":         true,
		"$TARGET":         true,
		"${TARGET}":       true,
		"%NAME%":          true,
		"!NAME!":          true,
		"plainword":       false,
		"":                false,
	}
	for in, want := range cases {
		if got := Plausible(in); got != want {
			t.Errorf("Plausible(%q) = %v, want %v", in, got, want)
		}
	}
}
