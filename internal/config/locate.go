package config

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultBaseName is the file name looked up when no --config flag is given.
const DefaultBaseName = "mipforge"

var defaultExtensions = []string{".cue", ".json", ".yaml", ".yml"}

// ErrNotFound is returned by Locate when no candidate exists.
var ErrNotFound = errors.New("config not found")

// Locate returns the first existing mipforge.{cue,json,yaml,yml} in dirs.
func Locate(dirs ...string) (string, error) {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		for _, ext := range defaultExtensions {
			p := filepath.Join(d, DefaultBaseName+ext)
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				return p, nil
			}
		}
	}
	return "", ErrNotFound
}
