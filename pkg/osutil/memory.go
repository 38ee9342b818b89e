package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

var cgroupMemoryLimitFiles = []string{
	// cgroup v2
	"/sys/fs/cgroup/memory.max",
	// cgroup v1
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// GetTotalMemory returns the memory available to the process, which is the
// container limit when one is set and the host memory otherwise.
func GetTotalMemory() uint64 {
	totalMemory := memory.TotalMemory()

	for _, path := range cgroupMemoryLimitFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if limit, ok := parseCgroupMemoryLimit(string(raw)); ok && limit < totalMemory {
			return limit
		}
	}
	return totalMemory
}

// parseCgroupMemoryLimit parses the contents of a cgroup memory limit file.
// Unrestricted cgroups report "max" (v2) or a page aligned max int64 (v1).
func parseCgroupMemoryLimit(raw string) (uint64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "max" {
		return 0, false
	}

	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || limit == 0 {
		return 0, false
	}
	return limit, true
}
