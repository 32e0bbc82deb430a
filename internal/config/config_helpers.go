package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// compileConfig loads path and compiles it into a concrete CUE value. JSON is
// valid CUE and compiles directly; YAML is extracted to a CUE file first.
func compileConfig(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	ctx := cuecontext.New()
	var v cue.Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue", ".json":
		v = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		f, err := cueyaml.Extract(path, data)
		if err != nil {
			return cue.Value{}, invalidf("%v", err)
		}
		v = ctx.BuildFile(f)
	default:
		return cue.Value{}, fmt.Errorf("unsupported config format %q: expected .cue, .json or .yaml", ext)
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, invalidf("%v", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, invalidf("%v", err)
	}
	return v, nil
}

// lookup returns the named field of v without parsing name as a CUE path, so
// tool names with dashes or dots work.
func lookup(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

// boolField decodes an optional boolean field.
func boolField(v cue.Value, name string) (bool, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return false, nil
	}
	if f.Kind() != cue.BoolKind {
		return false, fmt.Errorf("invalid type for field: %s (expected bool)", name)
	}
	return f.Bool()
}

// stringField decodes an optional string field.
func stringField(v cue.Value, name string) (string, bool, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return "", false, nil
	}
	if f.Kind() != cue.StringKind {
		return "", true, fmt.Errorf("invalid type for field: %s (expected string)", name)
	}
	s, err := f.String()
	return s, true, err
}

// scalarField decodes an optional string, number or bool field as text.
func scalarField(v cue.Value, name string) (string, bool, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return "", false, nil
	}
	s, ok := scalarString(f)
	if !ok {
		return "", true, fmt.Errorf("invalid type for field: %s (expected string or number)", name)
	}
	return s, true, nil
}

// stringListField decodes an optional list of strings.
func stringListField(v cue.Value, name string) ([]string, bool, error) {
	f := lookup(v, name)
	if !f.Exists() {
		return nil, false, nil
	}
	if f.Kind() != cue.ListKind {
		return nil, true, fmt.Errorf("invalid type for field: %s (expected list)", name)
	}
	it, err := f.List()
	if err != nil {
		return nil, true, fmt.Errorf("%s: %v", name, err)
	}
	var out []string
	for i := 0; it.Next(); i++ {
		el := it.Value()
		if el.Kind() != cue.StringKind {
			return nil, true, fmt.Errorf("invalid type for field: %s[%d] (expected string)", name, i)
		}
		s, err := el.String()
		if err != nil {
			return nil, true, fmt.Errorf("%s[%d]: %v", name, i, err)
		}
		out = append(out, s)
	}
	return out, true, nil
}

// scalarString renders a concrete scalar the way a template would print it.
func scalarString(v cue.Value) (string, bool) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		return s, err == nil
	case cue.IntKind:
		i, err := v.Int64()
		return strconv.FormatInt(i, 10), err == nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return strconv.FormatFloat(f, 'f', -1, 64), err == nil
	case cue.BoolKind:
		b, err := v.Bool()
		return strconv.FormatBool(b), err == nil
	default:
		return "", false
	}
}

// fieldNames returns the regular field labels of a struct in declaration order.
func fieldNames(v cue.Value) ([]string, error) {
	it, err := v.Fields()
	if err != nil {
		return nil, err
	}
	var out []string
	for it.Next() {
		out = append(out, it.Selector().Unquoted())
	}
	return out, nil
}
