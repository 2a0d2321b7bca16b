package core

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultCompiler is the compiler binary used when none is configured.
const DefaultCompiler = "tsc"

// CompileResult is the inspectable outcome of a compiler invocation.
//
// The compiler's exit status never aborts the process on its own; callers
// decide whether a failed compile stops the run.
type CompileResult struct {
	// Command is the full argv that was executed.
	Command []string

	// Stdout is the captured standard output (tsc reports diagnostics here).
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code, or -1 if the process never started.
	ExitCode int

	// Err is non-nil when the compiler could not be started or exited non-zero.
	Err error
}

// Failed reports whether the compile did not succeed.
func (r *CompileResult) Failed() bool {
	return r == nil || r.Err != nil
}

// Diagnostics returns the compiler output, stdout first.
func (r *CompileResult) Diagnostics() string {
	if r == nil {
		return ""
	}
	out := strings.TrimSpace(string(r.Stdout))
	errOut := strings.TrimSpace(string(r.Stderr))
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// Compiler invokes an external compiler binary on a single source file.
type Compiler struct {
	// Command is the compiler binary, resolved through PATH.
	Command string

	// Args are placed between Command and the source path.
	Args []string

	// Env holds variables added on top of the process environment.
	// The compiler needs PATH (node) so the host environment is inherited.
	Env map[string]string

	// WorkingDir is where the compiler runs.
	WorkingDir string
}

// NewCompiler creates a Compiler running command in workingDir.
func NewCompiler(workingDir, command string, args ...string) *Compiler {
	if command == "" {
		command = DefaultCompiler
	}
	return &Compiler{
		Command:    command,
		Args:       args,
		WorkingDir: workingDir,
	}
}

// Argv returns the argument vector used to compile source.
func (c *Compiler) Argv(source string) []string {
	argv := make([]string, 0, len(c.Args)+2)
	argv = append(argv, c.Command)
	argv = append(argv, c.Args...)
	return append(argv, source)
}

// Compile runs the compiler with source as its last argument and waits for it.
//
// The returned error is reserved for cancellation and misuse. Start
// failures and non-zero exits are reported through CompileResult.Err.
// On cancellation the compiler's whole process group is killed.
func (c *Compiler) Compile(ctx context.Context, source string) (*CompileResult, error) {
	if c == nil || c.Command == "" {
		return nil, errors.New("compiler command is empty")
	}
	if source == "" {
		return nil, errors.Wrap(ErrInvalidTarget, "source is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compile cancelled")
	}

	argv := c.Argv(source)
	result := &CompileResult{Command: argv, ExitCode: -1}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = c.WorkingDir
	cmd.Env = buildCompilerEnv(os.Environ(), c.Env)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		result.Err = errors.Wrapf(err, "starting %s", c.Command)
		return result, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return nil, errors.Wrap(ctx.Err(), "compile cancelled")
	case err = <-done:
	}

	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.Err = errors.Wrapf(err, "running %s", c.Command)
			return result, nil
		}
		result.ExitCode = exitErr.ExitCode()
		result.Err = errors.Errorf("%s exited with code %d", c.Command, result.ExitCode)
		return result, nil
	}

	result.ExitCode = 0
	return result, nil
}

// buildCompilerEnv overlays extra on base. Keys are applied in sorted order
// so the resulting environment does not depend on map iteration.
func buildCompilerEnv(base []string, extra map[string]string) []string {
	env := make([]string, len(base))
	copy(env, base)
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = setEnvKey(env, k, extra[k])
	}
	return env
}

// setEnvKey sets or updates an environment variable.
func setEnvKey(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
