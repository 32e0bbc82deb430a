package config

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
)

// parseToolsSection extracts tools.<name>.* in declaration order.
func parseToolsSection(v cue.Value) (map[string]Tool, error) {
	tv := lookup(v, "tools")
	if !tv.Exists() {
		return nil, fmt.Errorf("missing required field: tools")
	}
	if tv.Kind() != cue.StructKind {
		return nil, fmt.Errorf("invalid type for field: tools (expected struct)")
	}
	names, err := fieldNames(tv)
	if err != nil {
		return nil, fmt.Errorf("tools: %v", err)
	}
	tools := make(map[string]Tool, len(names))
	for _, name := range names {
		t, err := parseTool(name, lookup(tv, name))
		if err != nil {
			return nil, err
		}
		tools[name] = t
	}
	return tools, nil
}

func parseTool(name string, v cue.Value) (Tool, error) {
	t := Tool{Name: name, Kind: KindTransform}
	if v.Kind() != cue.StructKind {
		return Tool{}, fmt.Errorf("invalid type for field: tools.%s (expected struct)", name)
	}
	field := func(f string) string { return "tools." + name + "." + f }
	kind, ok, err := stringField(v, "kind")
	if err != nil {
		return Tool{}, fmt.Errorf("%s: %v", field("kind"), err)
	}
	if ok {
		t.Kind = Kind(kind)
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"command", &t.Command},
		{"options", &t.Options},
		{"source", &t.Source},
		{"destination", &t.Destination},
		{"derive", &t.Derive},
	}
	for _, s := range strs {
		if *s.dst, _, err = stringField(v, s.key); err != nil {
			return Tool{}, fmt.Errorf("%s: %v", field(s.key), err)
		}
	}
	if t.Threads, _, err = scalarField(v, "threads"); err != nil {
		return Tool{}, fmt.Errorf("%s: %v", field("threads"), err)
	}
	if t.Ratio, _, err = scalarField(v, "ratio"); err != nil {
		return Tool{}, fmt.Errorf("%s: %v", field("ratio"), err)
	}
	timeout, ok, err := scalarField(v, "timeoutMs")
	if err != nil {
		return Tool{}, fmt.Errorf("%s: %v", field("timeoutMs"), err)
	}
	if ok {
		n, err := strconv.Atoi(timeout)
		if err != nil || n < 0 {
			return Tool{}, fmt.Errorf("%s: expected a non-negative integer", field("timeoutMs"))
		}
		t.TimeoutMs = n
	}
	return t, nil
}
