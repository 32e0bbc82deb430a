package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flarebyte/mipforge/internal/subst"
)

const cpuCountPlaceholder = "cpucount"

// CPUCount is the default worker count: available parallelism minus one,
// floored at 1.
func CPUCount(cpus int) int {
	if cpus-1 < 1 {
		return 1
	}
	return cpus - 1
}

// ResolveThreads turns a thread spec such as "4", "${cpucount}" or
// "cpucount" into a positive worker count. An empty spec yields CPUCount.
func ResolveThreads(spec string, cpus int) (int, error) {
	n := CPUCount(cpus)
	s := strings.TrimSpace(spec)
	if s == "" || s == cpuCountPlaceholder {
		return n, nil
	}
	s = strings.TrimSpace(subst.Substitute(s, map[string]string{cpuCountPlaceholder: strconv.Itoa(n)}))
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("threads %q must resolve to a positive integer", spec)
	}
	return v, nil
}
