// Package report renders the outcome of a run as canonical YAML.
package report

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Report is the outcome of one invocation over one or more roots.
type Report struct {
	RunID      string
	Config     string
	StartedAt  time.Time
	FinishedAt time.Time
	Roots      []Root
}

// Root is the outcome of the stage sequence for one scanned root.
type Root struct {
	Path   string
	Files  int
	Stages []Stage
	// Info is the diagnostic info keyed by subpath.
	Info map[string]map[string]string
}

// Stage summarizes one stage over one root.
type Stage struct {
	Tool        string
	Kind        string
	Source      string
	Destination string
	Threads     int
	Ran         int
	Skipped     int
	Failed      int
	Errors      []FileError
}

// FileError is one error line attributed to a file.
type FileError struct {
	Subpath string
	Message string
}

// New returns a Report stamped with a fresh run id.
func New(configPath string, started time.Time) *Report {
	return &Report{RunID: uuid.NewString(), Config: configPath, StartedAt: started.UTC()}
}

// Failures counts failed tasks across every root and stage.
func (r *Report) Failures() int {
	n := 0
	for _, root := range r.Roots {
		for _, st := range root.Stages {
			n += st.Failed
		}
	}
	return n
}

// Marshal returns canonical YAML bytes: fixed field order, sorted map keys,
// errors sorted by (subpath, message), two-space indent.
func Marshal(r *Report) ([]byte, error) {
	top := &yaml.Node{Kind: yaml.MappingNode}
	addField(top, "runId", scalarFrom(r.RunID))
	addField(top, "config", scalarFrom(r.Config))
	addField(top, "startedAt", scalarFrom(formatTime(r.StartedAt)))
	addField(top, "finishedAt", scalarFrom(formatTime(r.FinishedAt)))
	roots := &yaml.Node{Kind: yaml.SequenceNode}
	for _, root := range r.Roots {
		roots.Content = append(roots.Content, rootNode(root))
	}
	addField(top, "roots", roots)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(top); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	out = append(out, '\n')
	return out, nil
}

// Write writes the canonical YAML to path, creating parent directories.
func Write(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func rootNode(root Root) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	addField(n, "path", scalarFrom(root.Path))
	addField(n, "files", scalarFrom(root.Files))
	stages := &yaml.Node{Kind: yaml.SequenceNode}
	for _, st := range root.Stages {
		stages.Content = append(stages.Content, stageNode(st))
	}
	addField(n, "stages", stages)
	info := &yaml.Node{Kind: yaml.MappingNode}
	for _, sub := range sortedKeys(root.Info) {
		addField(info, sub, stringMapNode(root.Info[sub]))
	}
	addField(n, "info", info)
	return n
}

func stageNode(st Stage) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	addField(n, "tool", scalarFrom(st.Tool))
	addField(n, "kind", scalarFrom(st.Kind))
	addField(n, "source", scalarFrom(st.Source))
	if st.Destination != "" {
		addField(n, "destination", scalarFrom(st.Destination))
	}
	addField(n, "threads", scalarFrom(st.Threads))
	addField(n, "ran", scalarFrom(st.Ran))
	addField(n, "skipped", scalarFrom(st.Skipped))
	addField(n, "failed", scalarFrom(st.Failed))
	if len(st.Errors) > 0 {
		errs := append([]FileError(nil), st.Errors...)
		sort.SliceStable(errs, func(i, j int) bool {
			if errs[i].Subpath != errs[j].Subpath {
				return errs[i].Subpath < errs[j].Subpath
			}
			return errs[i].Message < errs[j].Message
		})
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range errs {
			en := &yaml.Node{Kind: yaml.MappingNode}
			addField(en, "subpath", scalarFrom(e.Subpath))
			addField(en, "message", scalarFrom(e.Message))
			seq.Content = append(seq.Content, en)
		}
		addField(n, "errors", seq)
	}
	return n
}

func stringMapNode(m map[string]string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeys(m) {
		addField(n, k, scalarNode(m[k]))
	}
	return n
}

func addField(n *yaml.Node, key string, value *yaml.Node) {
	n.Content = append(n.Content, scalarNode(key), value)
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func scalarFrom(v any) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(v)
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
