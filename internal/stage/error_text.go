package stage

import "strings"

// sanitizeErrorMessage collapses whitespace so a tool's error line fits on
// one report line.
func sanitizeErrorMessage(msg string) string {
	s := strings.Join(strings.Fields(msg), " ")
	if s == "" {
		return "error"
	}
	return s
}
