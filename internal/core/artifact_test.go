package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestArtifactPath_SameDirDifferentExtension(t *testing.T) {
	cases := map[string]string{
		"main.ts":          "main.js",
		"ts/main.ts":       "ts/main.js",
		"/abs/src/app.tsx": "/abs/src/app.js",
		"noext":            "noext.js",
	}
	for in, want := range cases {
		if got := ArtifactPath(in); got != want {
			t.Errorf("ArtifactPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTarget_FinalPath(t *testing.T) {
	plain := Target{Source: "main.ts"}
	if got := plain.FinalPath(); got != "main.js" {
		t.Fatalf("unexpected final path: %q", got)
	}
	moved := Target{Source: "ts/main.ts", Relocate: true, Destination: "js/main.js"}
	if got := moved.FinalPath(); got != "js/main.js" {
		t.Fatalf("unexpected final path: %q", got)
	}
}

// TestRelocate_MovesContent checks that after relocation only the
// destination holds the artifact.
func TestRelocate_MovesContent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "ts", "main.js")
	p2 := filepath.Join(dir, "js", "main.js")
	if err := os.MkdirAll(filepath.Dir(p1), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p1, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := Relocate(p1, p2)
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if res.Bytes != 4 {
		t.Fatalf("expected 4 bytes copied, got %d", res.Bytes)
	}

	if got := readString(t, p2); got != "data" {
		t.Fatalf("destination content = %q", got)
	}
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
}

func TestRelocate_OverwritesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	p1 := writeArtifact(t, dir, "a.js", "new")
	p2 := writeArtifact(t, dir, "b.js", "old content that is longer")

	if _, err := Relocate(p1, p2); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if got := readString(t, p2); got != "new" {
		t.Fatalf("destination content = %q", got)
	}
}

func TestRelocate_MissingSourceLeavesDestinationAlone(t *testing.T) {
	dir := t.TempDir()
	p2 := filepath.Join(dir, "js", "main.js")

	_, err := Relocate(filepath.Join(dir, "missing.js"), p2)
	if !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	if _, err := os.Stat(p2); !os.IsNotExist(err) {
		t.Fatalf("expected no destination, stat err=%v", err)
	}
}

func TestRelocate_SamePathIsNoop(t *testing.T) {
	p := writeArtifact(t, t.TempDir(), "main.js", "data")
	if _, err := Relocate(p, p); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if got := readString(t, p); got != "data" {
		t.Fatalf("content changed: %q", got)
	}
}

func TestRelocate_DestinationThroughSymlinkedDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := writeArtifact(t, dir, filepath.Join("ts", "main.js"), "data")
	if err := os.Symlink(filepath.Join(dir, "ts"), filepath.Join(dir, "js")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := Relocate(src, filepath.Join(dir, "js", "main.js")); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if got := readString(t, src); got != "data" {
		t.Fatalf("artifact must survive a relocation onto itself, got %q", got)
	}
}

func TestRelocate_DestinationHardLinkIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := writeArtifact(t, dir, "a.js", "data")
	dst := filepath.Join(dir, "b.js")
	if err := os.Link(src, dst); err != nil {
		t.Skipf("hard links unavailable: %v", err)
	}

	if _, err := Relocate(src, dst); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if got := readString(t, dst); got != "data" {
		t.Fatalf("destination content = %q", got)
	}
}
