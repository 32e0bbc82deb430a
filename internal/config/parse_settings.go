package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

// decodeConfig extracts every known section from the compiled value.
func decodeConfig(v cue.Value) (Config, error) {
	var c Config
	var err error
	if c.ConfigVersion, _, err = scalarField(v, "configVersion"); err != nil {
		return Config{}, err
	}
	if c.Incremental, err = boolField(v, "incremental"); err != nil {
		return Config{}, err
	}
	if c.Verbose, err = boolField(v, "verbose"); err != nil {
		return Config{}, err
	}
	if c.Debug, err = boolField(v, "debug"); err != nil {
		return Config{}, err
	}
	if c.Gitignore, err = boolField(v, "gitignore"); err != nil {
		return Config{}, err
	}
	if c.Workers, _, err = scalarField(v, "workers"); err != nil {
		return Config{}, err
	}
	if c.Exclude, _, err = stringListField(v, "exclude"); err != nil {
		return Config{}, err
	}
	stages, ok, err := stringListField(v, "stages")
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, fmt.Errorf("missing required field: stages")
	}
	c.Stages = stages
	if c.Tools, err = parseToolsSection(v); err != nil {
		return Config{}, err
	}
	if c.Recipes, err = parseRecipesSection(v); err != nil {
		return Config{}, err
	}
	return c, nil
}
