package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
)

func TestRun_OrdersByWorklistPriorityThenLex(t *testing.T) {
	root := t.TempDir()
	write(t, root, "b.sh", "echo hi\n")
	write(t, root, "a.sh", "echo hi\n")

	manifest := models.NewReadManifest()
	manifest.Worklist = []string{"b.sh", "a.sh"}
	manifest.Priority = map[string]int{"b.sh": 10, "a.sh": 10}
	manifest.PeekWindow = map[string]int{"b.sh": 4096, "a.sh": 4096}
	manifest.Budget.MaxFiles = 10

	files := map[string]models.ScriptFile{
		"a.sh": {Path: "a.sh", RawPath: "a.sh", Language: models.LangShell},
		"b.sh": {Path: "b.sh", RawPath: "b.sh", Language: models.LangShell},
	}
	client := llm.New(context.Background(), llm.Config{}, nil)
	batch := Run(context.Background(), client, root, manifest, files)

	if len(batch.Files) != 2 || batch.Files[0].Path != "a.sh" || batch.Files[1].Path != "b.sh" {
		t.Fatalf("expected lex order a.sh, b.sh: %+v", batch.Files)
	}
}

func TestRun_ExtractsShellAssignmentsWithConservativeGrammar(t *testing.T) {
	root := t.TempDir()
	write(t, root, "run.sh", "BASE=./lib\nBAD=$(echo hi)\n")

	manifest := models.NewReadManifest()
	manifest.Worklist = []string{"run.sh"}
	manifest.Priority = map[string]int{"run.sh": 500}
	manifest.PeekWindow = map[string]int{"run.sh": 4096}
	manifest.Budget.MaxFiles = 10

	files := map[string]models.ScriptFile{"run.sh": {Path: "run.sh", RawPath: "run.sh", Language: models.LangShell}}
	client := llm.New(context.Background(), llm.Config{}, nil)
	batch := Run(context.Background(), client, root, manifest, files)

	var gotBase bool
	for _, a := range batch.EnvVars {
		if a.Name == "BASE" {
			gotBase = true
			if a.Value != "./lib" || a.Precedence != 10 {
				t.Fatalf("unexpected BASE assignment: %+v", a)
			}
		}
		if a.Name == "BAD" {
			t.Fatalf("command-substitution value should be rejected, got %+v", a)
		}
	}
	if !gotBase {
		t.Fatalf("expected BASE assignment, got %+v", batch.EnvVars)
	}
}

func TestRun_RespectsMaxFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.sh", "echo a\n")
	write(t, root, "b.sh", "echo b\n")

	manifest := models.NewReadManifest()
	manifest.Worklist = []string{"a.sh", "b.sh"}
	manifest.Priority = map[string]int{"a.sh": 10, "b.sh": 10}
	manifest.PeekWindow = map[string]int{"a.sh": 4096, "b.sh": 4096}
	manifest.Budget.MaxFiles = 1

	files := map[string]models.ScriptFile{
		"a.sh": {Path: "a.sh", RawPath: "a.sh", Language: models.LangShell},
		"b.sh": {Path: "b.sh", RawPath: "b.sh", Language: models.LangShell},
	}
	client := llm.New(context.Background(), llm.Config{}, nil)
	batch := Run(context.Background(), client, root, manifest, files)
	if len(batch.Files) != 1 {
		t.Fatalf("want 1 file read under MaxFiles=1, got %d", len(batch.Files))
	}
}

func write(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
