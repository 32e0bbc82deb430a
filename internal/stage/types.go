package stage

import "github.com/flarebyte/mipforge/internal/config"

// FileRecord is one regular file found under a scanned root. Subpath is slash
// separated, relative to the root, and identifies the file for the whole run.
type FileRecord struct {
	Subpath string
	AbsPath string
}

// Task is the fully resolved unit of work for one file in one stage. It is
// built once and never mutated.
type Task struct {
	Subpath         string
	Tool            string
	Kind            config.Kind
	Options         string
	Params          map[string]string
	Source          string
	Destination     string
	SourcePath      string
	DestinationPath string
	Command         string
}

// Result is the outcome of one Task.
type Result struct {
	Subpath string
	Tool    string
	// Info holds the "key = value" pairs of a diagnose task.
	Info     map[string]string
	Errors   []string
	ExitCode int
	Skipped  bool
	Failed   bool
}
