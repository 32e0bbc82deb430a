// Package cli holds version values injected by release scripts, e.g.:
//
//	-ldflags "-X 'github.com/flarebyte/mipforge/cli.Version=1.2.3' -X 'github.com/flarebyte/mipforge/cli.Date=2026-10-19'"
package cli

var (
	Version string
	Date    string
)
