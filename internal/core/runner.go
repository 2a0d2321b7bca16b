package core

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tsbuild/internal/trace"
)

// Runner executes the compile → relocate → trim pipeline for one target at
// a time. Steps run sequentially and block until done.
type Runner struct {
	// WorkingDir resolves relative target paths.
	WorkingDir string

	// Compiler is invoked on each target's source.
	Compiler *Compiler

	// HeaderLines is how many leading lines Trim drops.
	HeaderLines int

	// Strict stops a target when its compile fails. When false the run
	// continues on whatever artifact is on disk.
	Strict bool

	// Normalizer post-processes the trimmed artifact (optional).
	Normalizer OutputNormalizer

	// Reporter receives progress messages.
	Reporter Reporter

	// Logger receives structured logs.
	Logger *zap.Logger

	// Sink receives trace events (optional).
	Sink trace.Sink
}

// NewRunner creates a Runner with default header handling and no output.
func NewRunner(workingDir string, compiler *Compiler) *Runner {
	return &Runner{
		WorkingDir:  workingDir,
		Compiler:    compiler,
		HeaderLines: DefaultHeaderLines,
		Normalizer:  NewRawNormalizer(),
		Reporter:    NopReporter{},
		Logger:      zap.NewNop(),
		Sink:        trace.NopSink{},
	}
}

// RunResult contains the outcome of every step that ran for a target.
// A nil step result means the step did not run.
type RunResult struct {
	Target   Target
	Compile  *CompileResult
	Relocate *RelocateResult
	Trim     *TrimResult

	// Artifact is the resolved final artifact path.
	Artifact string

	// Err is the error that ended the run, also returned by Run.
	Err error
}

// Succeeded reports whether every step that ran succeeded.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Err == nil && !r.Compile.Failed()
}

// Run executes the pipeline for target.
//
// The execution flow:
//  1. Validate the target
//  2. Compile the source (failure ends the run only in strict mode)
//  3. Relocate the artifact when requested
//  4. Trim the artifact's header lines in place
//
// The returned RunResult is non-nil for every valid target and holds the
// results of the steps that ran, even when an error is returned.
func (r *Runner) Run(ctx context.Context, target Target) (*RunResult, error) {
	if err := r.validateTarget(target); err != nil {
		return nil, err
	}

	log := r.logger().With(zap.String("target", target.DisplayName()))
	res := &RunResult{Target: target, Artifact: r.resolve(target.FinalPath())}

	fail := func(reason string, err error) (*RunResult, error) {
		r.record(trace.TraceEvent{Kind: trace.EventTargetFailed, Target: target.DisplayName(), Reason: reason})
		log.Error("target failed", zap.String("reason", reason), zap.Error(err))
		res.Err = err
		return res, err
	}

	// 1. Compile
	r.reporter().StepStarted(target, StepCompile)
	compiled, err := r.Compiler.Compile(ctx, target.Source)
	if err != nil {
		return fail(trace.ReasonCancelled, errors.Wrapf(err, "compiling %s", target.Source))
	}
	res.Compile = compiled
	if compiled.Failed() {
		reason := trace.ReasonNonZeroExit
		if compiled.ExitCode < 0 {
			reason = trace.ReasonNotStarted
		}
		r.record(trace.TraceEvent{Kind: trace.EventTargetCompileFailed, Target: target.DisplayName(), Reason: reason})
		log.Warn("compile failed",
			zap.Strings("argv", compiled.Command),
			zap.Int("exit_code", compiled.ExitCode),
			zap.String("diagnostics", compiled.Diagnostics()),
			zap.Error(compiled.Err),
		)
		if r.Strict {
			return fail(trace.ReasonCompileFailed, errors.Wrapf(ErrCompileFailed, "%s: %v", target.Source, compiled.Err))
		}
		log.Info("continuing with artifact on disk")
	} else {
		r.record(trace.TraceEvent{Kind: trace.EventTargetCompiled, Target: target.DisplayName()})
		log.Debug("compiled", zap.Strings("argv", compiled.Command))
	}
	r.reporter().StepFinished(target, StepCompile)

	if err := ctx.Err(); err != nil {
		return fail(trace.ReasonCancelled, errors.Wrap(err, "run cancelled"))
	}

	// 2. Relocate
	if target.Relocate {
		from := r.resolve(ArtifactPath(target.Source))
		to := r.resolve(target.Destination)

		r.reporter().StepStarted(target, StepRelocate)
		moved, err := Relocate(from, to)
		if err != nil {
			return fail(reasonFor(err), errors.Wrapf(err, "relocating %s", target.DisplayName()))
		}
		res.Relocate = moved
		r.record(trace.TraceEvent{
			Kind:   trace.EventArtifactRelocated,
			Target: target.DisplayName(),
			Paths:  []string{filepath.ToSlash(ArtifactPath(target.Source)), filepath.ToSlash(target.Destination)},
		})
		log.Debug("relocated", zap.String("from", from), zap.String("to", to), zap.Int64("bytes", moved.Bytes))
		r.reporter().StepFinished(target, StepRelocate)
	}

	// 3. Trim
	r.reporter().StepStarted(target, StepTrim)
	trimmed, err := TrimHeaderFile(res.Artifact, r.HeaderLines, r.Normalizer)
	if err != nil {
		return fail(reasonFor(err), errors.Wrapf(err, "trimming %s", target.DisplayName()))
	}
	res.Trim = trimmed
	ev := trace.TraceEvent{Kind: trace.EventHeaderTrimmed, Target: target.DisplayName(), Paths: []string{filepath.ToSlash(target.FinalPath())}}
	if trimmed.Short() {
		ev.Reason = trace.ReasonShortArtifact
	}
	r.record(ev)
	log.Debug("trimmed",
		zap.String("artifact", res.Artifact),
		zap.Int("lines", trimmed.Lines),
		zap.Int64("removed_bytes", trimmed.Removed()),
	)
	r.reporter().StepFinished(target, StepTrim)

	return res, nil
}

// RunAll runs targets in order and stops at the first target error.
// Results for every target that started are returned.
func (r *Runner) RunAll(ctx context.Context, targets []Target) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(targets))
	for _, t := range targets {
		res, err := r.Run(ctx, t)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// validateTarget ensures the target can be run before anything executes.
func (r *Runner) validateTarget(target Target) error {
	if r.Compiler == nil {
		return errors.New("runner has no compiler")
	}
	if target.Source == "" {
		return errors.Wrap(ErrInvalidTarget, "source is required")
	}
	if target.Relocate && target.Destination == "" {
		return errors.Wrapf(ErrInvalidTarget, "%s: relocate requires a destination", target.DisplayName())
	}
	if r.HeaderLines < 0 {
		return errors.Errorf("header lines must not be negative (got %d)", r.HeaderLines)
	}
	return nil
}

func (r *Runner) resolve(p string) string {
	if filepath.IsAbs(p) || r.WorkingDir == "" {
		return p
	}
	return filepath.Join(r.WorkingDir, p)
}

func (r *Runner) record(e trace.TraceEvent) {
	trace.SafeRecord(r.Sink, e)
}

func (r *Runner) reporter() Reporter {
	if r.Reporter == nil {
		return NopReporter{}
	}
	return r.Reporter
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func reasonFor(err error) string {
	if errors.Is(err, ErrNoArtifact) {
		return trace.ReasonNoArtifact
	}
	return trace.ReasonFilesystem
}
