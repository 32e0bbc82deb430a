package stage

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitgitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// WalkOptions tunes enumeration.
type WalkOptions struct {
	// RespectGitignore skips paths matched by .gitignore files under the root,
	// and the .git directory itself.
	RespectGitignore bool
	// Exclude holds recipe-style globs; matching files are not yielded.
	Exclude []string
}

// Walk yields every regular file under root. Directories reached through a
// symlink are not descended into; symlinks to regular files are yielded.
// Errors are yielded in place of a record and the walk goes on unless the
// consumer stops.
func Walk(root string, opts WalkOptions) iter.Seq2[FileRecord, error] {
	return func(yield func(FileRecord, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(FileRecord{}, err)
			return
		}
		// WalkDir does not follow a symlinked root; entries below it still
		// keep the no-descent rule.
		walkRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			yield(FileRecord{}, err)
			return
		}
		var ignore *gitignoreSet
		if opts.RespectGitignore {
			ignore = &gitignoreSet{root: walkRoot}
		}
		_ = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(FileRecord{}, err) {
					return fs.SkipAll
				}
				return nil
			}
			rel, err := filepath.Rel(walkRoot, p)
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p == walkRoot {
					if ignore != nil {
						ignore.load(".")
					}
					return nil
				}
				if ignore != nil {
					if d.Name() == ".git" || ignore.match(rel, true) {
						return fs.SkipDir
					}
					ignore.load(rel)
				}
				return nil
			}
			if !isRegularTarget(p, d) {
				return nil
			}
			sub := filepath.ToSlash(rel)
			if ignore != nil && ignore.match(rel, false) {
				return nil
			}
			if excluded(opts.Exclude, sub) {
				return nil
			}
			if !yield(FileRecord{Subpath: sub, AbsPath: filepath.Join(absRoot, rel)}, nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Enumerate collects Walk into a slice sorted by subpath. The first walk
// error aborts enumeration.
func Enumerate(root string, opts WalkOptions) ([]FileRecord, error) {
	var out []FileRecord
	for rec, err := range Walk(root, opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subpath < out[j].Subpath })
	return out, nil
}

// isRegularTarget reports whether a non-directory entry is a regular file or
// a symlink resolving to one.
func isRegularTarget(p string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func excluded(patterns []string, subpath string) bool {
	for _, p := range patterns {
		if MatchPattern(p, subpath) {
			return true
		}
	}
	return false
}

// gitignoreSet accumulates .gitignore patterns while the walk descends. WalkDir
// visits a directory before its children, so every pattern that can apply to
// a path is loaded by the time the path is checked.
type gitignoreSet struct {
	root     string
	patterns []gitgitignore.Pattern
	matcher  gitgitignore.Matcher
}

func (g *gitignoreSet) load(relDir string) {
	b, err := os.ReadFile(filepath.Join(g.root, relDir, ".gitignore"))
	if err != nil {
		return
	}
	var domain []string
	if relDir != "." && relDir != "" {
		domain = splitRel(relDir)
	}
	added := false
	for _, line := range splitLines(string(b)) {
		if line == "" || line[0] == '#' {
			continue
		}
		g.patterns = append(g.patterns, gitgitignore.ParsePattern(line, domain))
		added = true
	}
	if added {
		g.matcher = gitgitignore.NewMatcher(g.patterns)
	}
}

func (g *gitignoreSet) match(rel string, isDir bool) bool {
	if g.matcher == nil {
		return false
	}
	return g.matcher.Match(splitRel(rel), isDir)
}

func splitRel(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}

func splitLines(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return lines
}
