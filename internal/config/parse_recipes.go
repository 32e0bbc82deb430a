package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

const (
	recipePatternKey = "pattern"
	recipeOptionsKey = "options"
)

// parseRecipesSection extracts the ordered recipe list. Every key of a recipe
// other than "pattern" names a tool.
func parseRecipesSection(v cue.Value) ([]Recipe, error) {
	rv := lookup(v, "recipes")
	if !rv.Exists() {
		return nil, nil
	}
	if rv.Kind() != cue.ListKind {
		return nil, fmt.Errorf("invalid type for field: recipes (expected list)")
	}
	it, err := rv.List()
	if err != nil {
		return nil, fmt.Errorf("recipes: %v", err)
	}
	var out []Recipe
	for i := 0; it.Next(); i++ {
		r, err := parseRecipe(i, it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRecipe(idx int, v cue.Value) (Recipe, error) {
	if v.Kind() != cue.StructKind {
		return Recipe{}, fmt.Errorf("invalid type for field: recipes[%d] (expected struct)", idx)
	}
	pattern, ok, err := stringField(v, recipePatternKey)
	if err != nil {
		return Recipe{}, fmt.Errorf("recipes[%d]: %v", idx, err)
	}
	if !ok || pattern == "" {
		return Recipe{}, fmt.Errorf("recipes[%d]: missing required field: pattern", idx)
	}
	r := Recipe{Pattern: pattern, Tools: map[string]ToolRecipe{}}
	names, err := fieldNames(v)
	if err != nil {
		return Recipe{}, fmt.Errorf("recipes[%d]: %v", idx, err)
	}
	for _, tool := range names {
		if tool == recipePatternKey {
			continue
		}
		tr, err := parseToolRecipe(idx, tool, lookup(v, tool))
		if err != nil {
			return Recipe{}, err
		}
		r.Tools[tool] = tr
	}
	return r, nil
}

func parseToolRecipe(idx int, tool string, v cue.Value) (ToolRecipe, error) {
	if v.Kind() != cue.StructKind {
		return ToolRecipe{}, fmt.Errorf("invalid type for field: recipes[%d].%s (expected struct)", idx, tool)
	}
	keys, err := fieldNames(v)
	if err != nil {
		return ToolRecipe{}, fmt.Errorf("recipes[%d].%s: %v", idx, tool, err)
	}
	var tr ToolRecipe
	for _, k := range keys {
		s, ok := scalarString(lookup(v, k))
		if !ok {
			return ToolRecipe{}, fmt.Errorf("invalid type for field: recipes[%d].%s.%s (expected string or number)", idx, tool, k)
		}
		if k == recipeOptionsKey {
			tr.Options = s
			tr.HasOptions = true
			continue
		}
		tr.Params = append(tr.Params, Param{Name: k, Template: s})
	}
	return tr, nil
}
