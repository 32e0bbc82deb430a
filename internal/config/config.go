package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrInvalid wraps every configuration problem. Configuration errors are fatal
// for the whole run.
var ErrInvalid = errors.New("invalid config")

// Kind selects how a tool's output is interpreted.
type Kind string

const (
	// KindDiagnose tools print "key = value" lines collected as per-file info.
	KindDiagnose Kind = "diagnose"
	// KindTransform tools write a destination file per source file.
	KindTransform Kind = "transform"
)

// Config is the parsed, validated configuration. It is never mutated after
// Load returns.
type Config struct {
	// Path is the absolute path of the loaded file. Its modification time takes
	// part in staleness checks.
	Path          string
	ConfigVersion string
	Incremental   bool
	Verbose       bool
	Debug         bool
	// Workers is the default thread spec for tools without their own.
	Workers   string
	Gitignore bool
	Exclude   []string
	Stages    []string
	Tools     map[string]Tool
	Recipes   []Recipe
}

// Tool describes one external program and how its stage is wired.
type Tool struct {
	Name    string
	Kind    Kind
	Command string
	Options string
	Threads string
	// Source defaults to "${path}" for the diagnostic stage and "${previous}"
	// for transforms.
	Source      string
	Destination string
	Ratio       string
	TimeoutMs   int
	Derive      string
}

// Recipe maps a glob pattern to per-tool settings.
type Recipe struct {
	Pattern string
	Tools   map[string]ToolRecipe
}

// ToolRecipe holds the settings of one tool inside a recipe. Params keep
// their declaration order so a param may reference an earlier one.
type ToolRecipe struct {
	Options    string
	HasOptions bool
	Params     []Param
}

// Param is a named template.
type Param struct {
	Name     string
	Template string
}

// Load reads, compiles and validates the configuration at path. Supported
// formats are CUE, JSON and YAML.
func Load(path string) (Config, error) {
	v, err := compileConfig(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return Config{}, invalidf("%v", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.Path = abs
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StageTools returns the tools in stage order.
func (c Config) StageTools() []Tool {
	out := make([]Tool, 0, len(c.Stages))
	for _, name := range c.Stages {
		if t, ok := c.Tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ThreadSpec returns the tool's thread spec, falling back to the global one.
func (c Config) ThreadSpec(t Tool) string {
	if t.Threads != "" {
		return t.Threads
	}
	return c.Workers
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
