package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate_NestedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.dds", "x")
	writeFile(t, root, "a/tex.dds", "x")
	writeFile(t, root, "a/b/c/deep.png", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	recs, err := Enumerate(root, WalkOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c/deep.png", "a/tex.dds", "top.dds"}, subpaths(recs))
	for _, r := range recs {
		assert.True(t, filepath.IsAbs(r.AbsPath))
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(r.Subpath)), r.AbsPath)
	}
}

func TestEnumerate_Symlinks(t *testing.T) {
	requirePOSIXShell(t)
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "linked/inner.dds", "x")
	target := writeFile(t, outside, "single.dds", "x")
	writeFile(t, root, "real.dds", "x")
	require.NoError(t, os.Symlink(filepath.Join(outside, "linked"), filepath.Join(root, "dirlink")))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "filelink.dds")))

	t.Run("Should skip symlinked directories below the root", func(t *testing.T) {
		recs, err := Enumerate(root, WalkOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"filelink.dds", "real.dds"}, subpaths(recs))
	})

	t.Run("Should follow a root that is itself a symlink", func(t *testing.T) {
		link := filepath.Join(t.TempDir(), "link")
		require.NoError(t, os.Symlink(root, link))

		recs, err := Enumerate(link, WalkOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"filelink.dds", "real.dds"}, subpaths(recs))
		for _, r := range recs {
			assert.Equal(t, filepath.Join(link, filepath.FromSlash(r.Subpath)), r.AbsPath)
		}
	})
}

func TestEnumerate_Gitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.tmp\nbuild/\n")
	writeFile(t, root, "keep.dds", "x")
	writeFile(t, root, "drop.tmp", "x")
	writeFile(t, root, "build/out.dds", "x")
	writeFile(t, root, "sub/.gitignore", "local.dds\n")
	writeFile(t, root, "sub/local.dds", "x")
	writeFile(t, root, "sub/other.dds", "x")
	writeFile(t, root, ".git/HEAD", "ref")

	t.Run("Should honor nested .gitignore files", func(t *testing.T) {
		recs, err := Enumerate(root, WalkOptions{RespectGitignore: true})
		require.NoError(t, err)
		assert.Equal(t, []string{".gitignore", "keep.dds", "sub/.gitignore", "sub/other.dds"}, subpaths(recs))
	})

	t.Run("Should list everything when disabled", func(t *testing.T) {
		recs, err := Enumerate(root, WalkOptions{})
		require.NoError(t, err)
		assert.Len(t, recs, 8)
	})
}

func TestEnumerate_Exclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/tex.dds", "x")
	writeFile(t, root, "a/notes.txt", "x")
	writeFile(t, root, "cache/tex.dds", "x")

	recs, err := Enumerate(root, WalkOptions{Exclude: []string{"*.txt", "cache/**"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/tex.dds"}, subpaths(recs))
}

func TestWalk_StopsEarly(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d"} {
		writeFile(t, root, n+".dds", "x")
	}
	n := 0
	for _, err := range Walk(root, WalkOptions{}) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEnumerate_MissingRoot(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "missing"), WalkOptions{})
	assert.Error(t, err)
}
