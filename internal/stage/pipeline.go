package stage

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/flarebyte/mipforge/internal/config"
	"github.com/flarebyte/mipforge/internal/logging"
	"github.com/flarebyte/mipforge/internal/report"
	"github.com/flarebyte/mipforge/internal/subst"
)

// Default stage directory templates.
const (
	defaultDiagnoseSource  = "${path}"
	defaultTransformSource = "${previous}"
)

// Options configures a Pipeline.
type Options struct {
	Logger *logging.Logger
	// ScriptDir is bound to the scriptdir placeholder; defaults to the
	// executable's directory.
	ScriptDir string
	// CPUs overrides runtime.NumCPU for thread resolution.
	CPUs int
	// TermGrace is the delay between SIGTERM and SIGKILL of a timed out tool.
	TermGrace time.Duration
}

// Pipeline runs the configured stage sequence over scanned roots. It holds
// no per-root state, so one Pipeline serves every root of a run.
type Pipeline struct {
	cfg       config.Config
	log       *logging.Logger
	scriptDir string
	configDir string
	cpus      int
	grace     time.Duration
	stale     Staleness
}

// NewPipeline binds a validated configuration to runtime options.
func NewPipeline(cfg config.Config, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = runtime.NumCPU()
	}
	scriptDir := opts.ScriptDir
	if scriptDir == "" {
		if exe, err := os.Executable(); err == nil {
			scriptDir = filepath.Dir(exe)
		}
	}
	configDir := ""
	if cfg.Path != "" {
		configDir = filepath.Dir(cfg.Path)
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		scriptDir: scriptDir,
		configDir: configDir,
		cpus:      cpus,
		grace:     opts.TermGrace,
		stale:     Staleness{Incremental: cfg.Incremental, ConfigPath: cfg.Path},
	}
}

// stagePlan is one stage with its directories and thread count resolved.
type stagePlan struct {
	tool        config.Tool
	source      string
	destination string
	threads     int
}

// Run enumerates root then runs the diagnostic stage to completion before
// each transform stage in order. Per-file failures are recorded in the
// returned report; an error is returned only for problems with the root or
// the stage layout, or when ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, root string) (report.Root, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return report.Root{}, err
	}
	out := report.Root{Path: absRoot, Info: map[string]map[string]string{}}
	fi, err := os.Stat(absRoot)
	if err != nil {
		return out, fmt.Errorf("root %s: %w", root, err)
	}
	if !fi.IsDir() {
		return out, fmt.Errorf("root %s: not a directory", root)
	}

	files, err := Enumerate(absRoot, WalkOptions{RespectGitignore: p.cfg.Gitignore, Exclude: p.cfg.Exclude})
	if err != nil {
		return out, fmt.Errorf("enumerate %s: %w", root, err)
	}
	out.Files = len(files)
	log := p.log.With("root", absRoot)
	log.Debug("enumerated", "files", len(files))

	previous := absRoot
	for _, tool := range p.cfg.StageTools() {
		plan, err := p.planStage(tool, absRoot, previous)
		if err != nil {
			return out, err
		}
		tasks := make([]Task, 0, len(files))
		for _, f := range files {
			tasks = append(tasks, p.buildTask(plan, absRoot, f.Subpath, out.Info[f.Subpath]))
		}
		results := RunStage(ctx, tasks, p.worker(plan), plan.threads)

		summary := report.Stage{
			Tool:        tool.Name,
			Kind:        string(tool.Kind),
			Source:      plan.source,
			Destination: plan.destination,
			Threads:     plan.threads,
		}
		for _, sub := range sortedKeys(results) {
			r := results[sub]
			switch {
			case r.Skipped:
				summary.Skipped++
			case r.Failed:
				summary.Ran++
				summary.Failed++
			default:
				summary.Ran++
			}
			for _, e := range r.Errors {
				summary.Errors = append(summary.Errors, report.FileError{Subpath: sub, Message: sanitizeErrorMessage(e)})
			}
			if tool.Kind == config.KindDiagnose && len(r.Info) > 0 {
				out.Info[sub] = r.Info
			}
		}
		out.Stages = append(out.Stages, summary)
		log.Debug("stage done", "tool", tool.Name, "ran", summary.Ran, "skipped", summary.Skipped, "failed", summary.Failed)

		if err := ctx.Err(); err != nil {
			return out, err
		}
		if tool.Kind == config.KindTransform {
			previous = plan.destination
		}
	}
	return out, nil
}

func (p *Pipeline) planStage(tool config.Tool, root, previous string) (stagePlan, error) {
	ctx := map[string]string{
		"scriptdir": p.scriptDir,
		"configdir": p.configDir,
		"path":      root,
		"previous":  previous,
		"stage":     tool.Name,
	}
	srcTpl := tool.Source
	if srcTpl == "" {
		srcTpl = defaultTransformSource
		if tool.Kind == config.KindDiagnose {
			srcTpl = defaultDiagnoseSource
		}
	}
	plan := stagePlan{tool: tool}
	var err error
	if plan.source, err = stageDir(srcTpl, ctx); err != nil {
		return plan, fmt.Errorf("%s: source: %w", tool.Name, err)
	}
	if tool.Kind == config.KindTransform {
		if plan.destination, err = stageDir(tool.Destination, ctx); err != nil {
			return plan, fmt.Errorf("%s: destination: %w", tool.Name, err)
		}
		if plan.destination == plan.source {
			return plan, fmt.Errorf("%s: destination %s is the stage source", tool.Name, plan.destination)
		}
	}
	if plan.threads, err = config.ResolveThreads(p.cfg.ThreadSpec(tool), p.cpus); err != nil {
		return plan, fmt.Errorf("%s: %w", tool.Name, err)
	}
	return plan, nil
}

func stageDir(tpl string, ctx map[string]string) (string, error) {
	dir := subst.Substitute(tpl, ctx)
	if names := subst.Names(dir); len(names) > 0 {
		return "", fmt.Errorf("unknown placeholder %q in %q", names[0], tpl)
	}
	return filepath.Abs(dir)
}

// buildTask resolves recipes, derived info and the command for one file.
// diag is the file's diagnostic info and is only read.
func (p *Pipeline) buildTask(plan stagePlan, root, subpath string, diag map[string]string) Task {
	tool := plan.tool
	res := Resolve(p.cfg.Recipes, subpath, tool.Name)
	options := res.Options
	if !res.OptionsSet {
		options = subst.Substitute(tool.Options, res.Params)
	}

	t := Task{
		Subpath:    subpath,
		Tool:       tool.Name,
		Kind:       tool.Kind,
		Options:    options,
		Params:     res.Params,
		Source:     plan.source,
		SourcePath: filepath.Join(plan.source, filepath.FromSlash(subpath)),
	}
	subdir := path.Dir(subpath)
	if subdir == "." {
		subdir = ""
	}
	run := map[string]string{
		"scriptdir":  p.scriptDir,
		"configdir":  p.configDir,
		"path":       root,
		"stage":      tool.Name,
		"source":     t.Source,
		"sourcepath": t.SourcePath,
		"sourcedir":  filepath.Dir(t.SourcePath),
		"subpath":    subpath,
		"subdir":     subdir,
	}
	if tool.Kind == config.KindTransform {
		t.Destination = plan.destination
		t.DestinationPath = filepath.Join(plan.destination, filepath.FromSlash(subpath))
		run["destination"] = t.Destination
		run["destinationpath"] = t.DestinationPath
		run["destinationdir"] = filepath.Dir(t.DestinationPath)
		maps.Copy(run, p.deriveInfo(tool, subpath, diag, res.Params))
	}
	t.Command = BuildCommand(tool.Command, options, res.Params, run)
	if p.log.DebugEnabled() {
		if names := subst.Names(t.Command); len(names) > 0 {
			p.log.Debug("unresolved placeholders", "tool", tool.Name, "file", subpath, "names", strings.Join(names, ","))
		}
	}
	return t
}

// deriveInfo returns the info a transform task sees: the diagnostic info,
// rescaled when a ratio applies, plus the output of the tool's derive script.
func (p *Pipeline) deriveInfo(tool config.Tool, subpath string, diag, params map[string]string) map[string]string {
	info := maps.Clone(diag)
	if info == nil {
		info = map[string]string{}
	}
	ratioText := params[RatioKey]
	if ratioText == "" {
		ratioText = tool.Ratio
	}
	ratio, ok, err := ParseRatio(ratioText)
	switch {
	case err != nil:
		p.log.Warn(err.Error(), "tool", tool.Name, "file", subpath)
	case ok:
		derived, err := Derive(diag, ratio)
		if err != nil {
			p.log.Warn("ratio not applied: "+err.Error(), "tool", tool.Name, "file", subpath)
		} else {
			info = derived
		}
	}
	if tool.Derive != "" {
		extra, err := RunDerive(tool.Derive, DeriveInput{Tool: tool.Name, Subpath: subpath, Info: info, Params: params}, 0)
		if err != nil {
			p.log.Warn(err.Error(), "tool", tool.Name, "file", subpath)
		}
		maps.Copy(info, extra)
	}
	return info
}

func (p *Pipeline) worker(plan stagePlan) Worker {
	tool := plan.tool
	return func(ctx context.Context, t Task) Result {
		if !p.stale.NeedsRun(t) {
			p.log.Debug("up to date", "tool", t.Tool, "file", t.Subpath)
			return Result{Tool: t.Tool, Skipped: true}
		}
		if t.DestinationPath != "" {
			if err := os.MkdirAll(filepath.Dir(t.DestinationPath), 0o755); err != nil {
				p.log.ToolError(t.Tool, t.Subpath, err.Error())
				return Result{Tool: t.Tool, Failed: true, ExitCode: -1, Errors: []string{err.Error()}}
			}
		}
		p.log.Progress(t.Tool, t.Subpath, t.Command)
		outcome := RunProcess(ctx, t.Command, t.Kind, RunOptions{
			Timeout:   time.Duration(tool.TimeoutMs) * time.Millisecond,
			TermGrace: p.grace,
			OnError:   func(line string) { p.log.ToolError(t.Tool, t.Subpath, line) },
			OnOutput:  func(line string) { p.log.ToolOutput(t.Tool, t.Subpath, line) },
		})
		return Result{
			Tool:     t.Tool,
			Info:     outcome.Info,
			Errors:   outcome.Errors,
			ExitCode: outcome.ExitCode,
			Failed:   outcome.Failed(),
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
