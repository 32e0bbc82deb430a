package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/mipforge/internal/buildinfo"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	oldShort, oldJSON := flagShort, flagJSON
	t.Cleanup(func() {
		buildinfo.Version, buildinfo.Commit, buildinfo.Date = oldVersion, oldCommit, oldDate
		flagShort, flagJSON = oldShort, oldJSON
	})
	buildinfo.Version, buildinfo.Commit, buildinfo.Date = version, commit, date
	flagShort, flagJSON = false, false
}

func runVersion(t *testing.T) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.SetErr(&errOut)
	t.Cleanup(func() {
		VersionCmd.SetOut(nil)
		VersionCmd.SetErr(nil)
	})
	require.NoError(t, VersionCmd.RunE(VersionCmd, nil))
	return out.String(), errOut.String()
}

func TestVersionDefaultOutputStable(t *testing.T) {
	withBuildInfo(t, "", "", "")
	out, _ := runVersion(t)
	assert.Equal(t, "mipforge dev\n", out)
}

func TestVersionSummary(t *testing.T) {
	withBuildInfo(t, "1.2.0", "0123456789abcdef", "2026-10-01")
	out, _ := runVersion(t)
	assert.Equal(t, "mipforge 1.2.0 (commit=0123456, date=2026-10-01)\n", out)

	flagShort = true
	out, _ = runVersion(t)
	assert.Equal(t, "1.2.0\n", out)
}

func TestVersionJSON(t *testing.T) {
	withBuildInfo(t, "1.2.0", "abc", "")
	flagJSON = true
	out, errOut := runVersion(t)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "1.2.0", v["version"])
	assert.Equal(t, "abc", v["commit"])
	assert.Contains(t, errOut, "mipforge version: 1.2.0")
}
