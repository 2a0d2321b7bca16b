package cli

import (
	"context"
	"os"
)

// Run is a high-level CLI entrypoint suitable for black-box tests.
// It accepts the argument slice (excluding argv[0]) and returns the semantic
// exit code plus any error.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithOptions(ctx, args, Options{})
}

// RunWithOptions is Run with explicit streams. Help text goes to
// opts.Stdout.
func RunWithOptions(ctx context.Context, args []string, opts Options) (CLIResult, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	inv, err := parseInvocation(args, out)
	if err != nil {
		return CLIResult{ExitCode: ExitCode(err)}, err
	}
	if inv.Command == "" {
		return CLIResult{ExitCode: ExitSuccess}, nil
	}
	return ExecuteWithOptions(ctx, inv, opts)
}
