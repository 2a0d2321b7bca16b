package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tsbuild/internal/config"
	"tsbuild/internal/core"
	"tsbuild/internal/trace"
	"tsbuild/internal/watch"
)

// Options carries the process-facing dependencies of an execution. Zero
// values fall back to the process streams and a logger built from the
// invocation.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// Logger overrides the stderr console logger.
	Logger *zap.Logger

	// Reporter overrides the progress printer on Stdout.
	Reporter core.Reporter
}

type CLIResult struct {
	ExitCode int

	// RunID identifies this execution in logs.
	RunID string

	// Results holds one entry per target that started, across all builds
	// of a watch session.
	Results []*core.RunResult

	// Trace is the trace of the last build, if one ran.
	Trace *trace.BuildTrace
}

// Execute runs a canonical invocation against the process streams.
func Execute(ctx context.Context, inv Invocation) (CLIResult, error) {
	return ExecuteWithOptions(ctx, inv, Options{})
}

// ExecuteWithOptions maps a canonical Invocation to pipeline execution.
//
// Responsibilities:
//   - Load configuration and apply flag overrides (flags win).
//   - Run the selected targets serially, reporting progress on Stdout.
//   - Write the trace when requested, even when the build fails.
//   - Translate outcomes to semantic exit codes; a panic maps to
//     ExitInternalError.
func ExecuteWithOptions(ctx context.Context, inv Invocation, opts Options) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	res.RunID = uuid.NewString()

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = newLogger(inv.Verbose, opts.Stderr)
		defer func() { _ = opts.Logger.Sync() }()
	}
	log := opts.Logger.With(zap.String("run_id", res.RunID), zap.String("command", string(inv.Command)))

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("panic: %v", r)
			log.Error("panic during execution", zap.Any("panic", r))
		}
	}()

	cfg, err := loadConfig(inv)
	if err != nil {
		res.ExitCode = ExitConfigError
		log.Error("configuration error", zap.Error(err))
		return res, err
	}

	if inv.Command == CommandTrim {
		return executeTrim(inv, cfg, opts, log, res)
	}

	targets, err := selectTargets(inv, cfg)
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}

	switch inv.Command {
	case CommandBuild:
		return executeBuild(ctx, inv, cfg, targets, opts, log, res)
	case CommandWatch:
		return executeWatch(ctx, inv, cfg, targets, opts, log, res)
	default:
		res.ExitCode = ExitInvalidInvocation
		return res, invalidInvocationf("unknown command %q", inv.Command)
	}
}

// loadConfig loads the config file and applies flag overrides on top of it.
func loadConfig(inv Invocation) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if inv.ConfigRequired {
		cfg, err = config.LoadRequired(inv.ConfigPath)
	} else {
		cfg, err = config.Load(inv.ConfigPath)
	}
	if err != nil {
		return nil, err
	}

	if inv.Compiler != "" {
		cfg.Compiler.Command = inv.Compiler
	}
	if inv.CompilerArgs != nil {
		cfg.Compiler.Args = inv.CompilerArgs
	}
	if inv.HeaderLines != nil {
		cfg.HeaderLines = *inv.HeaderLines
	}
	if inv.Strict != nil {
		cfg.Strict = *inv.Strict
	}
	if inv.Source != "" {
		cfg.Targets = []core.Target{{
			Source:      inv.Source,
			Relocate:    inv.RelocateTo != "",
			Destination: inv.RelocateTo,
		}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration %s", inv.ConfigPath)
	}
	return cfg, nil
}

func selectTargets(inv Invocation, cfg *config.Config) ([]core.Target, error) {
	targets, err := cfg.Select(inv.Targets)
	if err != nil {
		return nil, invalidInvocationf("%v", err)
	}
	return targets, nil
}

func newRunner(inv Invocation, cfg *config.Config, opts Options, log *zap.Logger, sink trace.Sink) *core.Runner {
	compiler := core.NewCompiler(inv.WorkDir, cfg.Compiler.Command, cfg.Compiler.Args...)
	compiler.Env = cfg.Compiler.Env

	runner := core.NewRunner(inv.WorkDir, compiler)
	runner.HeaderLines = cfg.HeaderLines
	runner.Strict = cfg.Strict
	runner.Normalizer = core.NormalizerFor(cfg.NormalizeNewlines)
	runner.Logger = log
	runner.Sink = sink
	runner.Reporter = opts.Reporter
	if runner.Reporter == nil {
		runner.Reporter = core.NewConsoleReporter(opts.Stdout, cfg.HeaderLines)
	}
	return runner
}

// build runs targets once and writes the trace and summary. It returns the
// build's exit code alongside the run error.
func build(ctx context.Context, inv Invocation, cfg *config.Config, targets []core.Target, opts Options, log *zap.Logger) ([]*core.RunResult, *trace.BuildTrace, int, error) {
	rec := trace.NewRecorder()
	runner := newRunner(inv, cfg, opts, log, rec)
	hash := cfg.Hash(inv.WorkDir, targets)

	log.Info("build started",
		zap.Int("targets", len(targets)),
		zap.String("pipeline_hash", hash.Short()),
		zap.Bool("strict", cfg.Strict),
	)

	results, runErr := runner.RunAll(ctx, targets)
	tr := rec.Trace(hash.String())

	code := buildExitCode(results, runErr)
	if inv.Trace.Enabled {
		if err := trace.WriteFile(inv.Trace.Path, tr); err != nil {
			log.Error("writing trace", zap.String("path", inv.Trace.Path), zap.Error(err))
			if runErr == nil {
				return results, &tr, ExitInternalError, err
			}
		}
	}

	if err := writeSummary(opts.Stdout, targets, results); err != nil {
		log.Warn("rendering summary", zap.Error(err))
	}

	traceHash, err := tr.Hash()
	if err != nil {
		log.Warn("hashing trace", zap.Error(err))
	}
	if runErr != nil {
		log.Error("build failed", zap.Error(runErr), zap.String("trace_hash", traceHash))
	} else {
		log.Info("build finished", zap.Int("exit_code", code), zap.String("trace_hash", traceHash))
	}
	return results, &tr, code, runErr
}

func executeBuild(ctx context.Context, inv Invocation, cfg *config.Config, targets []core.Target, opts Options, log *zap.Logger, res CLIResult) (CLIResult, error) {
	results, tr, code, err := build(ctx, inv, cfg, targets, opts, log)
	res.Results = results
	res.Trace = tr
	res.ExitCode = code
	return res, err
}

// executeWatch builds every selected target once, then rebuilds targets
// whose sources change until ctx is cancelled. A clean shutdown exits with
// the code of the last build.
func executeWatch(ctx context.Context, inv Invocation, cfg *config.Config, targets []core.Target, opts Options, log *zap.Logger, res CLIResult) (CLIResult, error) {
	rebuild := func(ctx context.Context, changed []core.Target) error {
		results, tr, code, err := build(ctx, inv, cfg, changed, opts, log)
		if ctx.Err() != nil {
			// interrupted builds do not decide the exit code
			return err
		}
		res.Results = append(res.Results, results...)
		res.Trace = tr
		res.ExitCode = code
		return err
	}

	w, err := watch.New(inv.WorkDir, targets, rebuild, watch.Options{Debounce: inv.Debounce, Logger: log})
	if err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}
	// The baseline predates the initial build, so edits saved while it
	// runs are rebuilt once watching starts.
	w.Prime()

	results, tr, code, err := build(ctx, inv, cfg, targets, opts, log)
	res.Results = append(res.Results, results...)
	res.Trace = tr
	res.ExitCode = code
	if err != nil && ctx.Err() != nil {
		w.Stop()
		return res, err
	}

	log.Info("watching for changes", zap.Int("targets", len(targets)), zap.Duration("debounce", inv.Debounce))
	if werr := w.Run(ctx); werr != nil {
		res.ExitCode = ExitInternalError
		return res, werr
	}
	if res.ExitCode != ExitSuccess {
		return res, errors.New("last build failed")
	}
	return res, nil
}

// executeTrim runs the trim step alone on inv.TrimFile.
func executeTrim(inv Invocation, cfg *config.Config, opts Options, log *zap.Logger, res CLIResult) (CLIResult, error) {
	display, err := filepath.Rel(inv.WorkDir, inv.TrimFile)
	if err != nil {
		display = inv.TrimFile
	}
	// A target whose final path is the file itself, for progress wording.
	target := core.Target{Name: display, Source: display, Relocate: true, Destination: display}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = core.NewConsoleReporter(opts.Stdout, cfg.HeaderLines)
	}

	reporter.StepStarted(target, core.StepTrim)
	trimmed, err := core.TrimHeaderFile(inv.TrimFile, cfg.HeaderLines, core.NormalizerFor(cfg.NormalizeNewlines))
	if err != nil {
		res.ExitCode = ExitBuildFailure
		log.Error("trim failed", zap.String("file", inv.TrimFile), zap.Error(err))
		return res, err
	}
	reporter.StepFinished(target, core.StepTrim)

	log.Debug("trimmed",
		zap.String("file", inv.TrimFile),
		zap.Int("lines", trimmed.Lines),
		zap.Int64("removed_bytes", trimmed.Removed()),
	)
	if trimmed.Short() {
		log.Warn("file had fewer lines than requested", zap.Int("found", trimmed.Found), zap.Int("lines", trimmed.Lines))
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

// buildExitCode maps run outcomes to an exit code: any failed step,
// including a compile failure the run continued past, fails the build.
func buildExitCode(results []*core.RunResult, runErr error) int {
	if runErr != nil {
		return ExitBuildFailure
	}
	for _, r := range results {
		if !r.Succeeded() {
			return ExitBuildFailure
		}
	}
	return ExitSuccess
}

// newLogger builds a console logger writing to w. verbose enables debug.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level))
}
