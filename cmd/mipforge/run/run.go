package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flarebyte/mipforge/internal/config"
	"github.com/flarebyte/mipforge/internal/logging"
	"github.com/flarebyte/mipforge/internal/report"
	"github.com/flarebyte/mipforge/internal/stage"
)

type flags struct {
	config        string
	report        string
	incremental   bool
	noIncremental bool
	verbose       bool
	debug         bool
	logJSON       bool
	timestamps    bool
}

// NewCmd creates the `mipforge run` command.
func NewCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "run <root>...",
		Short:         "Run the configured stages over one or more roots",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return execute(ctx, cmd, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "Path to config file (.cue, .json, .yaml); defaults to mipforge.* beside the executable, then in the working directory")
	fl.StringVar(&f.report, "report", "", "Write a YAML run report to this path")
	fl.BoolVar(&f.incremental, "incremental", false, "Skip outputs newer than their source and the config")
	fl.BoolVar(&f.noIncremental, "no-incremental", false, "Rebuild every output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Print resolved commands instead of file names")
	fl.BoolVar(&f.debug, "debug", false, "Echo tool output and debug messages")
	fl.BoolVar(&f.logJSON, "log-json", false, "Log as JSON lines")
	fl.BoolVar(&f.timestamps, "timestamps", false, "Prefix log lines with the time")
	cmd.MarkFlagsMutuallyExclusive("incremental", "no-incremental")
	return cmd
}

func execute(ctx context.Context, cmd *cobra.Command, f flags, roots []string) error {
	cfgPath, err := resolveConfigPath(f.config)
	if err != nil {
		return evaluateRunExit(err, 0)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return evaluateRunExit(err, 0)
	}
	applyOverrides(cmd, f, &cfg)
	if err := checkRoots(roots); err != nil {
		return evaluateRunExit(err, 0)
	}

	log := logging.New(logging.Options{
		Output:     cmd.ErrOrStderr(),
		Verbose:    cfg.Verbose,
		Debug:      cfg.Debug,
		JSON:       f.logJSON,
		Timestamps: f.timestamps,
	})
	rep := report.New(cfg.Path, time.Now())
	log.Debug("config loaded", "path", cfg.Path, "run", rep.RunID, "incremental", cfg.Incremental)

	p := stage.NewPipeline(cfg, stage.Options{Logger: log})
	runErr := runRoots(ctx, p, roots, rep)
	rep.FinishedAt = time.Now().UTC()

	if f.report != "" {
		if err := report.Write(f.report, rep); err != nil && runErr == nil {
			runErr = fmt.Errorf("write report: %w", err)
		}
	}
	if failures := rep.Failures(); failures > 0 {
		log.Warn(fmt.Sprintf("%d task(s) failed", failures))
	}
	return evaluateRunExit(runErr, rep.Failures())
}

// runRoots processes roots one after the other; a root's stages all finish
// before the next root starts.
func runRoots(ctx context.Context, p *stage.Pipeline, roots []string, rep *report.Report) error {
	for _, root := range roots {
		r, err := p.Run(ctx, root)
		rep.Roots = append(rep.Roots, r)
		if err != nil {
			return err
		}
	}
	return nil
}

func resolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	p, err := config.Locate(dirs...)
	if err != nil {
		return "", fmt.Errorf("%w: pass --config or place %s.cue beside the executable", err, config.DefaultBaseName)
	}
	return p, nil
}

// applyOverrides lets explicitly set flags win over configuration booleans.
func applyOverrides(cmd *cobra.Command, f flags, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("incremental") {
		cfg.Incremental = f.incremental
	}
	if fl.Changed("no-incremental") {
		cfg.Incremental = !f.noIncremental
	}
	if fl.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if fl.Changed("debug") {
		cfg.Debug = f.debug
	}
}

// checkRoots fails before any stage runs when a root is not a directory.
func checkRoots(roots []string) error {
	for _, r := range roots {
		fi, err := os.Stat(r)
		if err != nil {
			return fmt.Errorf("root %s: %w", r, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("root %s: not a directory", r)
		}
	}
	return nil
}
