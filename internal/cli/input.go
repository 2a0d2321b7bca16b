package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tsbuild/internal/config"
	"tsbuild/internal/watch"
)

const (
	ExitSuccess           = 0
	ExitBuildFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Command names the subcommand an Invocation runs.
type Command string

const (
	CommandBuild Command = "build"
	CommandTrim  Command = "trim"
	CommandWatch Command = "watch"
)

type TraceConfig struct {
	Enabled bool
	Path    string
}

// Invocation is the canonical description of one tsbuild run.
//
// All paths are cleaned and relative paths are resolved against WorkDir,
// which is always absolute. Optional overrides are nil (or unset) when the
// flag was not given, so configuration values survive.
type Invocation struct {
	Command Command

	WorkDir string

	// ConfigPath is the config file to load. ConfigRequired is set when the
	// path was given explicitly, making a missing file an error.
	ConfigPath     string
	ConfigRequired bool

	// Targets selects configured targets by name; empty selects all.
	Targets []string

	Compiler     string
	CompilerArgs []string
	HeaderLines  *int
	Strict       *bool

	// Source and RelocateTo describe an ad-hoc target replacing the
	// configured ones.
	Source     string
	RelocateTo string

	// TrimFile is the file the trim command rewrites.
	TrimFile string

	// Debounce is the watch quiet period.
	Debounce time.Duration

	Trace   TraceConfig
	Verbose bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// flagValues holds raw flag values before canonicalization.
type flagValues struct {
	workDir      string
	configPath   string
	verbose      bool
	targets      []string
	compiler     string
	compilerArgs []string
	headerLines  int
	strict       bool
	source       string
	relocateTo   string
	tracePath    string
	debounce     time.Duration
}

// ParseInvocation parses CLI arguments (excluding argv[0]) into a canonical
// Invocation. Help output is discarded; an Invocation with an empty Command
// means help was requested.
func ParseInvocation(args []string) (Invocation, error) {
	return parseInvocation(args, io.Discard)
}

func parseInvocation(args []string, out io.Writer) (Invocation, error) {
	var inv Invocation
	root := newRootCommand(&inv)
	if args == nil {
		// cobra falls back to os.Args on a nil slice
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(io.Discard)

	if err := root.Execute(); err != nil {
		var invErr *InvocationError
		if errors.As(err, &invErr) {
			return Invocation{}, invErr
		}
		return Invocation{}, invalidInvocationf("%v", err)
	}
	return inv, nil
}

// newRootCommand builds the command tree. Subcommands do not execute
// anything: they canonicalize their flags into inv.
func newRootCommand(inv *Invocation) *cobra.Command {
	fv := &flagValues{}

	root := &cobra.Command{
		Use:   "tsbuild",
		Short: "Compile TypeScript and strip the compiler prologue",
		Long: `tsbuild compiles TypeScript sources with an external compiler, optionally
moves each artifact to its destination, then removes the first lines of the
artifact (by default the two-line "use strict" / __esModule prologue).`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&fv.workDir, "workdir", "", "Working directory (default: current directory)")
	root.PersistentFlags().StringVar(&fv.configPath, "config", "", "Config file (default: <workdir>/"+config.DefaultFileName+")")
	root.PersistentFlags().BoolVarP(&fv.verbose, "verbose", "v", false, "Enable debug logging")

	build := &cobra.Command{
		Use:   "build",
		Short: "Compile, relocate and trim the selected targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fv.canonicalize(cmd, inv, CommandBuild)
		},
	}
	addPipelineFlags(build.Flags(), fv)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild targets whose sources change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fv.canonicalize(cmd, inv, CommandWatch)
		},
	}
	addPipelineFlags(watchCmd.Flags(), fv)
	watchCmd.Flags().DurationVar(&fv.debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed source is rebuilt")

	trim := &cobra.Command{
		Use:   "trim FILE",
		Short: "Remove the first lines of FILE in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return invalidInvocationf("trim: file must not be empty")
			}
			inv.TrimFile = args[0]
			return fv.canonicalize(cmd, inv, CommandTrim)
		},
	}
	trim.Flags().IntVar(&fv.headerLines, "header-lines", 0, "Number of leading lines to remove (default from config, 2)")

	root.AddCommand(build, watchCmd, trim)
	return root
}

func addPipelineFlags(f *pflag.FlagSet, fv *flagValues) {
	f.StringSliceVar(&fv.targets, "target", nil, "Target name to run (repeatable; default: all)")
	f.StringVar(&fv.compiler, "compiler", "", "Compiler binary (default from config, tsc)")
	f.StringArrayVar(&fv.compilerArgs, "compiler-arg", nil, "Argument passed to the compiler before the source (repeatable)")
	f.IntVar(&fv.headerLines, "header-lines", 0, "Number of leading artifact lines to remove (default from config, 2)")
	f.BoolVar(&fv.strict, "strict", false, "Stop a target when its compile fails")
	f.StringVar(&fv.source, "source", "", "Build this source instead of the configured targets")
	f.StringVar(&fv.relocateTo, "relocate-to", "", "Move the artifact of --source here before trimming")
	f.StringVar(&fv.tracePath, "trace", "", "Write the build trace to this file")
}

func (fv *flagValues) canonicalize(cmd *cobra.Command, inv *Invocation, command Command) error {
	out := Invocation{Command: command, Verbose: fv.verbose, TrimFile: inv.TrimFile}

	workDir, err := resolveWorkDir(fv.workDir)
	if err != nil {
		return err
	}
	out.WorkDir = workDir

	if fv.configPath != "" {
		p, err := resolveUnderWorkDir(workDir, fv.configPath)
		if err != nil {
			return err
		}
		out.ConfigPath = p
		out.ConfigRequired = true
	} else {
		out.ConfigPath = filepath.Join(workDir, config.DefaultFileName)
	}

	flags := cmd.Flags()
	if flags.Changed("header-lines") {
		if fv.headerLines < 0 {
			return invalidInvocationf("--header-lines must not be negative (got %d)", fv.headerLines)
		}
		n := fv.headerLines
		out.HeaderLines = &n
	}

	if command == CommandTrim {
		p, err := resolveUnderWorkDir(workDir, out.TrimFile)
		if err != nil {
			return err
		}
		out.TrimFile = p
		*inv = out
		return nil
	}

	if flags.Changed("compiler") {
		if strings.TrimSpace(fv.compiler) == "" {
			return invalidInvocationf("--compiler must not be empty")
		}
		out.Compiler = fv.compiler
	}
	if flags.Changed("compiler-arg") {
		out.CompilerArgs = append([]string{}, fv.compilerArgs...)
	}
	if flags.Changed("strict") {
		s := fv.strict
		out.Strict = &s
	}

	for _, name := range fv.targets {
		if name = strings.TrimSpace(name); name != "" {
			out.Targets = append(out.Targets, name)
		}
	}

	if fv.relocateTo != "" && fv.source == "" {
		return invalidInvocationf("--relocate-to requires --source")
	}
	if fv.source != "" {
		if len(out.Targets) > 0 {
			return invalidInvocationf("--source cannot be combined with --target")
		}
		out.Source = filepath.Clean(fv.source)
		if fv.relocateTo != "" {
			out.RelocateTo = filepath.Clean(fv.relocateTo)
		}
	}

	if strings.TrimSpace(fv.tracePath) != "" {
		p, err := resolveUnderWorkDir(workDir, fv.tracePath)
		if err != nil {
			return err
		}
		out.Trace = TraceConfig{Enabled: true, Path: p}
	}

	if command == CommandWatch {
		if fv.debounce <= 0 {
			return invalidInvocationf("--debounce must be positive (got %s)", fv.debounce)
		}
		out.Debounce = fv.debounce
	}

	*inv = out
	return nil
}

func resolveWorkDir(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &InvocationError{ExitCode: ExitInternalError, Message: fmt.Sprintf("resolving working directory: %v", err)}
		}
		return filepath.Clean(wd), nil
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", invalidInvocationf("invalid --workdir %q: %v", raw, err)
	}
	return filepath.Clean(abs), nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
