package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tokligence/chat-bridge/internal/provider"
)

func collect(t *testing.T, ch <-chan provider.StreamEvent) string {
	t.Helper()
	var out string
	for ev := range ch {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		out += ev.Text
	}
	return out
}

func TestGenerateEchoes(t *testing.T) {
	p := New(WithFragmentSize(2))
	ch, err := p.Generate(context.Background(), provider.GenerateRequest{Prompt: "hello there"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := collect(t, ch); got != "[static] hello there" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestGenerateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New()
	ch, err := p.Generate(ctx, provider.GenerateRequest{Prompt: "never mind"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := collect(t, ch); got != "" {
		t.Fatalf("expected no fragments after cancel, got %q", got)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
models:
  - id: demo-1
    name: Demo One
    vendor: acme
    family: demo
replies:
  hi: Hello
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	p, err := LoadCatalog(path, WithFragmentSize(2))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "demo-1" || models[0].Vendor != "acme" {
		t.Fatalf("unexpected models %+v", models)
	}

	ch, err := p.Generate(context.Background(), provider.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := collect(t, ch); got != "Hello" {
		t.Fatalf("expected canned reply, got %q", got)
	}
}

func TestLoadCatalogRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("models: []\n"), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}
