package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arvidnilsson/depscan/internal/llm"
	"github.com/arvidnilsson/depscan/internal/models"
)

func TestRun_EndToEndLinearBundle(t *testing.T) {
	root := t.TempDir()
	write(t, root, "run.sh", "#!/bin/bash\n./lib/load.sh\n")
	write(t, root, "lib/load.sh", "#!/bin/bash\necho loaded\n")

	client := llm.New(context.Background(), llm.Config{}, nil)
	orch := New(client, nil, nil)

	res, err := orch.Run(context.Background(), Options{
		Root:        root,
		NodesPolicy: models.NodesAll,
		Budget:      models.DefaultBudget(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var foundEdge bool
	for _, e := range res.Doc.Edges {
		if e.Src == "run.sh" && e.Dst == "lib/load.sh" {
			foundEdge = true
		}
	}
	if !foundEdge {
		t.Fatalf("expected run.sh -> lib/load.sh edge, got %+v", res.Doc.Edges)
	}
	if len(res.Doc.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %v", res.Doc.Nodes)
	}
}

func TestRun_DynamicUnresolvedCallSiteSurfacesInDiagnostics(t *testing.T) {
	root := t.TempDir()
	write(t, root, "run.sh", "#!/bin/bash\n$UNKNOWN/foo.sh\n")

	client := llm.New(context.Background(), llm.Config{}, nil)
	orch := New(client, nil, nil)

	res, err := orch.Run(context.Background(), Options{
		Root:        root,
		NodesPolicy: models.NodesAll,
		Budget:      models.Budget{MaxToolCalls: 10, MaxFiles: 10, MaxLoops: 0},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved call site, got %+v", res.Unresolved)
	}
}

func TestRun_ReLoopExhaustsStillUnresolvedAfterBudget(t *testing.T) {
	root := t.TempDir()
	write(t, root, "run.sh", "#!/bin/bash\n$UNKNOWN/foo.sh\n")

	client := llm.New(context.Background(), llm.Config{}, nil)
	orch := New(client, nil, nil)

	res, err := orch.Run(context.Background(), Options{
		Root:        root,
		NodesPolicy: models.NodesAll,
		Budget:      models.Budget{MaxToolCalls: 10, MaxFiles: 10, MaxLoops: 1},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Unresolved) != 1 {
		t.Fatalf("expected the still-unresolved call site to survive the re-loop, got %+v", res.Unresolved)
	}
	if res.Unresolved[0].Src != "run.sh" {
		t.Fatalf("unexpected unresolved entry: %+v", res.Unresolved[0])
	}
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
