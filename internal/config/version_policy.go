package config

import (
	"slices"
	"strings"
)

// CurrentConfigVersion is the configuration layout this build reads. A config
// may omit configVersion; it is then read as the current layout.
const CurrentConfigVersion = "1"

var SupportedConfigVersions = []string{CurrentConfigVersion}

// IsSupportedConfigVersion accepts "1", "v1" and the number 1.
func IsSupportedConfigVersion(v string) bool {
	return slices.Contains(SupportedConfigVersions, normalizeConfigVersion(v))
}

func SupportedConfigVersionsCSV() string {
	return strings.Join(SupportedConfigVersions, ", ")
}

func normalizeConfigVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}
