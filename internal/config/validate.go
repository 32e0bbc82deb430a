package config

import (
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuin/gopher-lua/parse"

	"github.com/flarebyte/mipforge/internal/subst"
)

// Validate checks the cross-field rules that decoding cannot express.
func (c Config) Validate() error {
	if c.ConfigVersion != "" && !IsSupportedConfigVersion(c.ConfigVersion) {
		return invalidf("unsupported configVersion: %q (supported: %s)", c.ConfigVersion, SupportedConfigVersionsCSV())
	}
	if _, err := ResolveThreads(c.Workers, 2); err != nil {
		return invalidf("workers: %v", err)
	}
	for i, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return invalidf("exclude[%d]: invalid pattern %q", i, p)
		}
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	for _, name := range c.Stages {
		if err := validateTool(c.Tools[name]); err != nil {
			return err
		}
	}
	for i, r := range c.Recipes {
		if err := validateRecipe(i, r); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validateStages() error {
	if len(c.Stages) == 0 {
		return invalidf("stages: must list at least one tool")
	}
	seen := map[string]struct{}{}
	for i, name := range c.Stages {
		t, ok := c.Tools[name]
		if !ok {
			return invalidf("stages[%d]: unknown tool %q", i, name)
		}
		if _, dup := seen[name]; dup {
			return invalidf("stages[%d]: tool %q listed twice", i, name)
		}
		seen[name] = struct{}{}
		if t.Kind == KindDiagnose && i != 0 {
			return invalidf("stages[%d]: diagnose tool %q must be the first stage", i, name)
		}
	}
	if first := c.Tools[c.Stages[0]]; first.Kind != KindDiagnose {
		return invalidf("stages[0]: first stage %q must be a diagnose tool", first.Name)
	}
	return nil
}

func validateTool(t Tool) error {
	field := func(f string) string { return "tools." + t.Name + "." + f }
	switch t.Kind {
	case KindDiagnose, KindTransform:
	default:
		return invalidf("%s: must be %q or %q", field("kind"), KindDiagnose, KindTransform)
	}
	if strings.TrimSpace(t.Command) == "" {
		return invalidf("missing required field: %s", field("command"))
	}
	if t.Kind == KindTransform && t.Destination == "" {
		return invalidf("missing required field: %s", field("destination"))
	}
	if _, err := ResolveThreads(t.Threads, 2); err != nil {
		return invalidf("%s: %v", field("threads"), err)
	}
	if t.Ratio != "" {
		if r, err := strconv.ParseFloat(t.Ratio, 64); err != nil || r <= 0 {
			return invalidf("%s: expected a positive number", field("ratio"))
		}
	}
	templates := map[string]string{
		"command":     t.Command,
		"options":     t.Options,
		"source":      t.Source,
		"destination": t.Destination,
	}
	for k, tpl := range templates {
		if err := subst.Check(tpl); err != nil {
			return invalidf("%s: %v", field(k), err)
		}
	}
	if t.Derive != "" {
		if _, err := parse.Parse(strings.NewReader(t.Derive), field("derive")); err != nil {
			return invalidf("%s: %v", field("derive"), err)
		}
	}
	return nil
}

func validateRecipe(idx int, r Recipe) error {
	if !doublestar.ValidatePattern(r.Pattern) {
		return invalidf("recipes[%d].pattern: invalid pattern %q", idx, r.Pattern)
	}
	for tool, tr := range r.Tools {
		if err := subst.Check(tr.Options); err != nil {
			return invalidf("recipes[%d].%s.options: %v", idx, tool, err)
		}
		for _, p := range tr.Params {
			if err := subst.Check(p.Template); err != nil {
				return invalidf("recipes[%d].%s.%s: %v", idx, tool, p.Name, err)
			}
		}
	}
	return nil
}
