package stage

import "os"

// IsStale reports whether destination must be (re)built from sources. A
// missing destination is stale. Otherwise any source with a strictly newer
// modification time makes it stale. Sources that cannot be stat'ed carry no
// information and are ignored.
func IsStale(sources []string, destination string) bool {
	dst, err := os.Stat(destination)
	if err != nil {
		return true
	}
	for _, src := range sources {
		fi, err := os.Stat(src)
		if err != nil {
			continue
		}
		if fi.ModTime().After(dst.ModTime()) {
			return true
		}
	}
	return false
}

// Staleness decides which tasks may be skipped.
type Staleness struct {
	Incremental bool
	// ConfigPath is always compared, so editing the configuration
	// invalidates every output.
	ConfigPath string
}

// NeedsRun reports whether t must run. Tasks without a destination
// (diagnostics) always run, as does everything when incremental mode is off.
func (s Staleness) NeedsRun(t Task) bool {
	if !s.Incremental || t.DestinationPath == "" {
		return true
	}
	sources := []string{t.SourcePath}
	if s.ConfigPath != "" {
		sources = append(sources, s.ConfigPath)
	}
	return IsStale(sources, t.DestinationPath)
}
