package cli_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	icl "tsbuild/internal/cli"
)

const fakeTsc = `#!/bin/sh
src="$1"
out="${src%.*}.js"
printf '"use strict";\nexports.__esModule = true;\n' > "$out"
cat "$src" >> "$out"
`

// setupWorkDir creates a project with main.ts, ts/main.ts and a fake
// compiler, and returns it with the compiler flags.
func setupWorkDir(t *testing.T, compiler string) (string, []string) {
	t.Helper()
	workDir := t.TempDir()
	script := filepath.Join(workDir, "bin", "fake-tsc.sh")
	files := map[string]string{
		script:                                  compiler,
		filepath.Join(workDir, "main.ts"):       "const x = 1;\n",
		filepath.Join(workDir, "ts", "main.ts"): "export const y = 2;\n",
	}
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	}
	return workDir, []string{"--workdir", workDir, "--compiler", "sh", "--compiler-arg", script}
}

func run(args ...string) (icl.CLIResult, error) {
	return icl.RunWithOptions(context.Background(), args, icl.Options{Stdout: io.Discard, Logger: zap.NewNop()})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestDeterministicInvocation_IdenticalRunsIdenticalArtifacts(t *testing.T) {
	workDir, flags := setupWorkDir(t, fakeTsc)
	args := append([]string{"build"}, flags...)
	args = append(args, "--trace", "trace.json")

	res1, err := run(args...)
	require.NoError(t, err)
	require.Equal(t, icl.ExitSuccess, res1.ExitCode)
	out1 := readFile(t, filepath.Join(workDir, "main.js"))
	tr1 := readFile(t, filepath.Join(workDir, "trace.json"))

	res2, err := run(args...)
	require.NoError(t, err)
	require.Equal(t, icl.ExitSuccess, res2.ExitCode)
	out2 := readFile(t, filepath.Join(workDir, "main.js"))
	tr2 := readFile(t, filepath.Join(workDir, "trace.json"))

	assert.Equal(t, "const x = 1;\n", out1)
	assert.Equal(t, out1, out2, "artifact differs across identical runs")
	assert.Equal(t, tr1, tr2, "trace differs across identical runs")
	assert.NotEqual(t, res1.RunID, res2.RunID, "run ids must be unique")
}

func TestPathResolution_RelativePathsResolveAgainstWorkDir(t *testing.T) {
	workDir, flags := setupWorkDir(t, fakeTsc)
	otherCwd := t.TempDir()

	oldCwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(otherCwd))
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	args := append([]string{"build"}, flags...)
	args = append(args, "--source", "ts/main.ts", "--relocate-to", "js/main.js", "--trace", "traces/t.json")

	res, err := run(args...)
	require.NoError(t, err)
	require.Equal(t, icl.ExitSuccess, res.ExitCode)

	assert.Equal(t, "export const y = 2;\n", readFile(t, filepath.Join(workDir, "js", "main.js")))
	assert.FileExists(t, filepath.Join(workDir, "traces", "t.json"))
	assert.NoFileExists(t, filepath.Join(workDir, "ts", "main.js"))
	assert.NoFileExists(t, filepath.Join(otherCwd, "js", "main.js"))
}

func TestExitCodeStability_FailingCompileIsStable(t *testing.T) {
	_, flags := setupWorkDir(t, "#!/bin/sh\nexit 9\n")
	args := append([]string{"build", "--strict"}, flags...)

	res1, _ := run(args...)
	res2, _ := run(args...)
	assert.Equal(t, icl.ExitBuildFailure, res1.ExitCode)
	assert.Equal(t, icl.ExitBuildFailure, res2.ExitCode)
}

func TestInvalidInvocation_DeterministicAndExplainable(t *testing.T) {
	workDir := t.TempDir()
	args := []string{"build", "--workdir", workDir, "--relocate-to", "js/main.js"}

	res1, err1 := run(args...)
	res2, err2 := run(args...)

	assert.Equal(t, icl.ExitInvalidInvocation, res1.ExitCode)
	assert.Equal(t, icl.ExitInvalidInvocation, res2.ExitCode)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error(), "expected deterministic error message")
	assert.Contains(t, err1.Error(), "--source")
}

func TestHelp_ExitsSuccessfully(t *testing.T) {
	res, err := run("--help")
	require.NoError(t, err)
	assert.Equal(t, icl.ExitSuccess, res.ExitCode)
	assert.Empty(t, res.RunID, "help must not execute anything")
}

func TestWriteFailure_ReadOnlyDestination_ReturnsExit1(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	workDir, flags := setupWorkDir(t, fakeTsc)
	jsDir := filepath.Join(workDir, "js")
	require.NoError(t, os.MkdirAll(jsDir, 0o755))
	require.NoError(t, os.Chmod(jsDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(jsDir, 0o755) })

	args := append([]string{"build"}, flags...)
	args = append(args, "--source", "ts/main.ts", "--relocate-to", "js/main.js")

	res, err := run(args...)
	require.Error(t, err)
	assert.Equal(t, icl.ExitBuildFailure, res.ExitCode)
	assert.FileExists(t, filepath.Join(workDir, "ts", "main.js"), "failed relocation must leave the origin in place")
}
