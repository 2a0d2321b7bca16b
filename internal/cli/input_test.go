package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseInvocation_DeterministicStruct(t *testing.T) {
	workDir := t.TempDir()
	args := []string{
		"build",
		"--workdir", workDir,
		"--config", "conf/../tsbuild.yaml",
		"--target", "web",
		"--target", "root",
		"--compiler", "npx",
		"--compiler-arg", "tsc",
		"--compiler-arg", "--pretty",
		"--header-lines", "3",
		"--strict",
		"--trace", "traces/../trace.json",
	}

	inv1, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inv2, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(inv1, inv2) {
		t.Fatalf("expected identical invocations, got\n%#v\n%#v", inv1, inv2)
	}

	if inv1.Command != CommandBuild {
		t.Fatalf("unexpected command %q", inv1.Command)
	}
	if inv1.WorkDir != filepath.Clean(workDir) {
		t.Fatalf("workdir not canonicalized: %q", inv1.WorkDir)
	}
	if inv1.ConfigPath != filepath.Join(workDir, "tsbuild.yaml") || !inv1.ConfigRequired {
		t.Fatalf("config not resolved: %q required=%v", inv1.ConfigPath, inv1.ConfigRequired)
	}
	if !reflect.DeepEqual(inv1.Targets, []string{"web", "root"}) {
		t.Fatalf("unexpected targets: %v", inv1.Targets)
	}
	if inv1.Compiler != "npx" || !reflect.DeepEqual(inv1.CompilerArgs, []string{"tsc", "--pretty"}) {
		t.Fatalf("unexpected compiler: %q %v", inv1.Compiler, inv1.CompilerArgs)
	}
	if inv1.HeaderLines == nil || *inv1.HeaderLines != 3 {
		t.Fatalf("unexpected header lines: %v", inv1.HeaderLines)
	}
	if inv1.Strict == nil || !*inv1.Strict {
		t.Fatalf("unexpected strict: %v", inv1.Strict)
	}
	if !inv1.Trace.Enabled || inv1.Trace.Path != filepath.Join(workDir, "trace.json") {
		t.Fatalf("trace not resolved/canonicalized: %#v", inv1.Trace)
	}
}

func TestParseInvocation_UnsetFlagsLeaveConfigValues(t *testing.T) {
	workDir := t.TempDir()
	inv, err := ParseInvocation([]string{"build", "--workdir", workDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.HeaderLines != nil || inv.Strict != nil || inv.Compiler != "" || inv.CompilerArgs != nil {
		t.Fatalf("expected no overrides, got %#v", inv)
	}
	if inv.ConfigPath != filepath.Join(workDir, "tsbuild.yaml") || inv.ConfigRequired {
		t.Fatalf("expected optional default config, got %q required=%v", inv.ConfigPath, inv.ConfigRequired)
	}
	if inv.Trace.Enabled {
		t.Fatal("trace must be disabled by default")
	}
}

func TestParseInvocation_ExplicitZeroHeaderLines(t *testing.T) {
	inv, err := ParseInvocation([]string{"build", "--workdir", t.TempDir(), "--header-lines", "0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.HeaderLines == nil || *inv.HeaderLines != 0 {
		t.Fatalf("expected explicit 0, got %v", inv.HeaderLines)
	}
}

func TestParseInvocation_ResolvesRelativePathsAgainstWorkDir_NotCwd(t *testing.T) {
	workDir := t.TempDir()
	otherCwd := t.TempDir()

	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
	if err := os.Chdir(otherCwd); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}

	inv, err := ParseInvocation([]string{"build", "--workdir", workDir, "--config", "c.yaml", "--trace", "t.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.ConfigPath != filepath.Join(workDir, "c.yaml") {
		t.Fatalf("expected config under workdir, got %q", inv.ConfigPath)
	}
	if inv.Trace.Path != filepath.Join(workDir, "t.json") {
		t.Fatalf("expected trace under workdir, got %q", inv.Trace.Path)
	}
}

func TestParseInvocation_SourceAndRelocate(t *testing.T) {
	workDir := t.TempDir()
	inv, err := ParseInvocation([]string{"build", "--workdir", workDir, "--source", "ts/./main.ts", "--relocate-to", "js/main.js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Source != filepath.Join("ts", "main.ts") || inv.RelocateTo != filepath.Join("js", "main.js") {
		t.Fatalf("unexpected ad-hoc target: %q -> %q", inv.Source, inv.RelocateTo)
	}
}

func TestParseInvocation_Trim(t *testing.T) {
	workDir := t.TempDir()
	inv, err := ParseInvocation([]string{"trim", "--workdir", workDir, "--header-lines", "1", "js/main.js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Command != CommandTrim {
		t.Fatalf("unexpected command %q", inv.Command)
	}
	if inv.TrimFile != filepath.Join(workDir, "js", "main.js") {
		t.Fatalf("trim file not resolved: %q", inv.TrimFile)
	}
	if inv.HeaderLines == nil || *inv.HeaderLines != 1 {
		t.Fatalf("unexpected header lines: %v", inv.HeaderLines)
	}
}

func TestParseInvocation_WatchDebounce(t *testing.T) {
	inv, err := ParseInvocation([]string{"watch", "--workdir", t.TempDir(), "--debounce", "50ms"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Command != CommandWatch || inv.Debounce != 50*time.Millisecond {
		t.Fatalf("unexpected watch invocation: %#v", inv)
	}
}

func TestParseInvocation_HelpHasNoCommand(t *testing.T) {
	for _, args := range [][]string{nil, {"--help"}, {"build", "--help"}} {
		inv, err := ParseInvocation(args)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if inv.Command != "" {
			t.Fatalf("%v: expected no command, got %q", args, inv.Command)
		}
	}
}

func TestParseInvocation_InvalidInvocations(t *testing.T) {
	workDir := t.TempDir()
	cases := map[string][]string{
		"unknown command":          {"deploy"},
		"unknown flag":             {"build", "--workdir", workDir, "--nope"},
		"positional args":          {"build", "--workdir", workDir, "extra"},
		"negative header lines":    {"build", "--workdir", workDir, "--header-lines", "-1"},
		"non-numeric header lines": {"build", "--workdir", workDir, "--header-lines", "two"},
		"relocate without source":  {"build", "--workdir", workDir, "--relocate-to", "js/main.js"},
		"source with target":       {"build", "--workdir", workDir, "--source", "a.ts", "--target", "main"},
		"empty compiler":           {"build", "--workdir", workDir, "--compiler", ""},
		"trim without file":        {"trim", "--workdir", workDir},
		"trim with two files":      {"trim", "--workdir", workDir, "a.js", "b.js"},
		"non-positive debounce":    {"watch", "--workdir", workDir, "--debounce", "0s"},
		"trim flag on build only":  {"trim", "--workdir", workDir, "--strict", "a.js"},
		"empty config path":        {"build", "--workdir", workDir, "--config", "."},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInvocation(args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if ExitCode(err) != ExitInvalidInvocation {
				t.Fatalf("expected exit code %d, got %d (%v)", ExitInvalidInvocation, ExitCode(err), err)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitSuccess {
		t.Fatal("nil error must map to success")
	}
	if ExitCode(os.ErrNotExist) != ExitInternalError {
		t.Fatal("unknown error must map to internal error")
	}
	if ExitCode(&InvocationError{ExitCode: ExitConfigError}) != ExitConfigError {
		t.Fatal("explicit exit code must be kept")
	}
	if ExitCode(&InvocationError{}) != ExitInvalidInvocation {
		t.Fatal("zero exit code must default to invalid invocation")
	}
}
