package core

import (
	"os"
	"path/filepath"
	"testing"
)

func baseHashInput() HashInput {
	return HashInput{
		WorkingDir:  "/work",
		Compiler:    []string{"tsc"},
		Env:         map[string]string{"A": "1", "B": "2"},
		HeaderLines: 2,
		Targets:     []Target{{Name: "main", Source: "main.ts"}},
	}
}

func TestComputePipelineHash_Deterministic(t *testing.T) {
	h1 := ComputePipelineHash(baseHashInput())
	h2 := ComputePipelineHash(baseHashInput())
	if h1 != h2 {
		t.Fatalf("expected identical hashes, got %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestComputePipelineHash_ComponentChangesInvalidate(t *testing.T) {
	base := ComputePipelineHash(baseHashInput())

	mutations := map[string]func(*HashInput){
		"workdir":  func(in *HashInput) { in.WorkingDir = "/other" },
		"compiler": func(in *HashInput) { in.Compiler = []string{"tsc", "--strict"} },
		"env":      func(in *HashInput) { in.Env["A"] = "changed" },
		"header":   func(in *HashInput) { in.HeaderLines = 3 },
		"strict":   func(in *HashInput) { in.Strict = true },
		"newlines": func(in *HashInput) { in.NormalizeNewlines = true },
		"relocate": func(in *HashInput) { in.Targets[0].Relocate = true; in.Targets[0].Destination = "js/main.js" },
		"targets":  func(in *HashInput) { in.Targets = append(in.Targets, Target{Name: "b", Source: "b.ts"}) },
	}
	for name, mutate := range mutations {
		in := baseHashInput()
		mutate(&in)
		if ComputePipelineHash(in) == base {
			t.Errorf("%s change did not change the hash", name)
		}
	}
}

func TestComputePipelineHash_EnvOrderDoesNotMatter(t *testing.T) {
	in1 := baseHashInput()
	in2 := baseHashInput()
	in2.Env = map[string]string{"B": "2", "A": "1"}
	if ComputePipelineHash(in1) != ComputePipelineHash(in2) {
		t.Fatal("env order changed the hash")
	}
}

func TestDigestFile_MatchesDigestBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.ts")
	if err := os.WriteFile(path, []byte("const x = 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	if d != DigestBytes([]byte("const x = 1;\n")) {
		t.Fatalf("digest mismatch")
	}
	if len(d.Short()) != 12 {
		t.Fatalf("unexpected short digest %q", d.Short())
	}
}
