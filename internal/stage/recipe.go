package stage

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flarebyte/mipforge/internal/config"
	"github.com/flarebyte/mipforge/internal/subst"
)

// Resolution is the outcome of matching one file against the recipes for one
// tool.
type Resolution struct {
	Options string
	Params  map[string]string
	// Matched is false when no recipe both matched the file and configured
	// the tool.
	Matched bool
	// OptionsSet reports whether a matching recipe defined options.
	OptionsSet bool
}

// Resolve scans every recipe in order. For each one whose pattern matches
// subpath and that configures tool, params are substituted against the
// params resolved so far, then options against the result. Later recipes
// overwrite earlier params and replace the whole options string.
func Resolve(recipes []config.Recipe, subpath, tool string) Resolution {
	res := Resolution{Params: map[string]string{}}
	for _, r := range recipes {
		tr, ok := r.Tools[tool]
		if !ok || !MatchPattern(r.Pattern, subpath) {
			continue
		}
		res.Matched = true
		for _, p := range tr.Params {
			res.Params[p.Name] = subst.Substitute(p.Template, res.Params)
		}
		if tr.HasOptions {
			res.Options = subst.Substitute(tr.Options, res.Params)
			res.OptionsSet = true
		}
	}
	return res
}

// MatchPattern matches a doublestar glob against a slash separated subpath.
// A pattern without a separator also matches the base name, so "*.dds"
// selects files at any depth.
func MatchPattern(pattern, subpath string) bool {
	if ok, err := doublestar.Match(pattern, subpath); err == nil && ok {
		return true
	}
	if strings.Contains(pattern, "/") {
		return false
	}
	base := subpath
	if i := strings.LastIndexByte(subpath, '/'); i >= 0 {
		base = subpath[i+1:]
	}
	ok, err := doublestar.Match(pattern, base)
	return err == nil && ok
}
