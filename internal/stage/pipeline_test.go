package stage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/mipforge/internal/config"
	"github.com/flarebyte/mipforge/internal/logging"
)

const (
	fakeDiag = `#!/bin/sh
case "$1" in
  *broken*) echo "cannot read $1" >&2; exit 1 ;;
esac
echo "texdiag 1.0"
echo "width = 1024"
echo "height = 512"
echo "mipLevels = 11"
`
	fakeTexconv = `#!/bin/sh
# texconv.sh WIDTH HEIGHT MIPS SRC DST
if [ ! -f "$4" ]; then echo "FAILED reading $4"; exit 0; fi
printf 'width=%s height=%s mipmaps=%s\n' "$1" "$2" "$3" > "$5"
`
)

type fixture struct {
	root  string
	tools string
	out   string
	cfg   config.Config
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	requirePOSIXShell(t)
	base := t.TempDir()
	f := fixture{
		root:  filepath.Join(base, "textures"),
		tools: filepath.Join(base, "tools"),
		out:   filepath.Join(base, "out"),
	}
	writeFile(t, f.tools, "texdiag.sh", fakeDiag)
	writeFile(t, f.tools, "texconv.sh", fakeTexconv)
	cfgPath := writeFile(t, base, "mipforge.cue", "{}")
	setMtime(t, cfgPath, time.Now().Add(-time.Hour))

	f.cfg = config.Config{
		Path:        cfgPath,
		Incremental: true,
		Workers:     "2",
		Stages:      []string{"texdiag", "convert", "texconv"},
		Tools: map[string]config.Tool{
			"texdiag": {
				Name:    "texdiag",
				Kind:    config.KindDiagnose,
				Command: `sh "${scriptdir}/texdiag.sh" "${sourcepath}"`,
			},
			"convert": {
				Name:        "convert",
				Kind:        config.KindTransform,
				Command:     `cp "${sourcepath}" "${destinationpath}"`,
				Destination: f.out + "/${stage}",
			},
			"texconv": {
				Name:        "texconv",
				Kind:        config.KindTransform,
				Command:     `sh "${scriptdir}/texconv.sh" ${options} "${sourcepath}" "${destinationpath}"`,
				Options:     "${width} ${height} ${mipmaps}",
				Destination: f.out + "/${stage}",
				Threads:     "cpucount",
			},
		},
		Recipes: []config.Recipe{
			{Pattern: "**/*.dds", Tools: map[string]config.ToolRecipe{
				"texconv": {Params: []config.Param{{Name: "ratio", Template: "0.5"}}},
			}},
		},
	}
	return f
}

func (f fixture) pipeline(log *logging.Logger) *Pipeline {
	return NewPipeline(f.cfg, Options{Logger: log, ScriptDir: f.tools, CPUs: 4, TermGrace: 50 * time.Millisecond})
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.root, "a/tex.dds", "DDS")

	var logs bytes.Buffer
	rep, err := f.pipeline(logging.New(logging.Options{Output: &logs})).Run(context.Background(), f.root)
	require.NoError(t, err)

	converted := filepath.Join(f.out, "convert", "a", "tex.dds")
	b, err := os.ReadFile(converted)
	require.NoError(t, err)
	assert.Equal(t, "DDS", string(b))

	final := filepath.Join(f.out, "texconv", "a", "tex.dds")
	b, err = os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "width=512 height=256 mipmaps=9\n", string(b))

	assert.Equal(t, 1, rep.Files)
	assert.Equal(t, map[string]string{"width": "1024", "height": "512", "mipLevels": "11"}, rep.Info["a/tex.dds"])
	require.Len(t, rep.Stages, 3)
	assert.Equal(t, "texdiag", rep.Stages[0].Tool)
	assert.Equal(t, f.root, rep.Stages[1].Source)
	assert.Equal(t, filepath.Join(f.out, "convert"), rep.Stages[2].Source, "texconv reads the convert output")
	assert.Equal(t, 3, rep.Stages[2].Threads)
	for _, st := range rep.Stages {
		assert.Equal(t, 1, st.Ran, st.Tool)
		assert.Zero(t, st.Failed, st.Tool)
	}
	assert.Contains(t, logs.String(), "texconv: a/tex.dds")
}

func TestPipeline_Incremental(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.root, "a/tex.dds", "DDS")
	p := f.pipeline(nil)

	_, err := p.Run(context.Background(), f.root)
	require.NoError(t, err)
	rep, err := p.Run(context.Background(), f.root)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stages[0].Ran, "diagnostics always run")
	assert.Equal(t, 1, rep.Stages[1].Skipped)
	assert.Equal(t, 1, rep.Stages[2].Skipped)

	f.cfg.Incremental = false
	rep, err = f.pipeline(nil).Run(context.Background(), f.root)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stages[2].Ran)
}

func TestPipeline_FailuresDoNotStopSiblings(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.root, "good.dds", "DDS")
	writeFile(t, f.root, "broken.dds", "DDS")

	var logs bytes.Buffer
	rep, err := f.pipeline(logging.New(logging.Options{Output: &logs})).Run(context.Background(), f.root)
	require.NoError(t, err)

	diag := rep.Stages[0]
	assert.Equal(t, 2, diag.Ran)
	assert.Equal(t, 1, diag.Failed)
	require.NotEmpty(t, diag.Errors)
	assert.Equal(t, "broken.dds", diag.Errors[0].Subpath)
	assert.NotContains(t, rep.Info, "broken.dds")

	// The broken file still flows through later stages with raw placeholders.
	texconv := rep.Stages[2]
	assert.Equal(t, 2, texconv.Ran)
	_, err = os.Stat(filepath.Join(f.out, "texconv", "good.dds"))
	assert.NoError(t, err)
	assert.Contains(t, logs.String(), "error:")
	assert.Contains(t, logs.String(), "cannot read")
}

func TestPipeline_VerboseShowsCommand(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.root, "x.dds", "DDS")
	var logs bytes.Buffer
	_, err := f.pipeline(logging.New(logging.Options{Output: &logs, Verbose: true})).Run(context.Background(), f.root)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "texconv: sh \""+f.tools+"/texconv.sh\" 512 256 9")
}

func TestPipeline_RootErrors(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(nil)

	_, err := p.Run(context.Background(), filepath.Join(f.root, "missing"))
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "plain.dds", "x")
	_, err = p.Run(context.Background(), file)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a directory"))
}

func TestPipeline_DeriveScript(t *testing.T) {
	f := newFixture(t)
	tool := f.cfg.Tools["texconv"]
	tool.Derive = `return { width = "7" }`
	f.cfg.Tools["texconv"] = tool
	writeFile(t, f.root, "d.dds", "DDS")

	_, err := f.pipeline(nil).Run(context.Background(), f.root)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(f.out, "texconv", "d.dds"))
	require.NoError(t, err)
	assert.Equal(t, "width=7 height=256 mipmaps=9\n", string(b))
}

func TestPipeline_BuildTaskParams(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(nil)
	plan, err := p.planStage(f.cfg.Tools["texconv"], f.root, filepath.Join(f.out, "convert"))
	require.NoError(t, err)

	diag := map[string]string{"width": "1024", "height": "512"}
	task := p.buildTask(plan, f.root, "a/b/tex.dds", diag)

	assert.Equal(t, filepath.Join(f.out, "convert", "a", "b", "tex.dds"), task.SourcePath)
	assert.Equal(t, filepath.Join(f.out, "texconv", "a", "b", "tex.dds"), task.DestinationPath)
	assert.Equal(t, "${width} ${height} ${mipmaps}", task.Options)
	assert.Equal(t, map[string]string{"ratio": "0.5"}, task.Params)
	assert.Contains(t, task.Command, " 512 256 9 ")
	assert.Equal(t, "1024", diag["width"], "diagnostic info is never modified")
}

func TestPipeline_ToolRatio(t *testing.T) {
	diag := map[string]string{"width": "1024", "height": "512"}

	t.Run("Should fall back to the tool ratio when no recipe sets one", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Recipes = nil
		tool := f.cfg.Tools["texconv"]
		tool.Ratio = "0.5"
		f.cfg.Tools["texconv"] = tool
		p := f.pipeline(nil)
		plan, err := p.planStage(tool, f.root, filepath.Join(f.out, "convert"))
		require.NoError(t, err)

		task := p.buildTask(plan, f.root, "a/tex.dds", diag)
		assert.Empty(t, task.Params)
		assert.Contains(t, task.Command, " 512 256 9 ")
	})

	t.Run("Should prefer the recipe ratio over the tool ratio", func(t *testing.T) {
		f := newFixture(t)
		tool := f.cfg.Tools["texconv"]
		tool.Ratio = "0.25"
		f.cfg.Tools["texconv"] = tool
		p := f.pipeline(nil)
		plan, err := p.planStage(tool, f.root, filepath.Join(f.out, "convert"))
		require.NoError(t, err)

		task := p.buildTask(plan, f.root, "a/tex.dds", diag)
		assert.Contains(t, task.Command, " 512 256 9 ")
	})
}
