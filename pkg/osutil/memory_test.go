package osutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCgroupMemoryLimit(t *testing.T) {
	limit, ok := parseCgroupMemoryLimit("536870912\n")
	assert.True(t, ok)
	assert.EqualValues(t, 512*1024*1024, limit)

	for _, raw := range []string{"max\n", "", "garbage", "0"} {
		_, ok := parseCgroupMemoryLimit(raw)
		assert.False(t, ok, raw)
	}

	// Unrestricted cgroup v1 limits parse, but are discarded by GetTotalMemory
	// as they exceed the host memory
	limit, ok = parseCgroupMemoryLimit("9223372036854771712")
	assert.True(t, ok)
	assert.EqualValues(t, uint64(9223372036854771712), limit)
}

func TestGetTotalMemory(t *testing.T) {
	assert.NotZero(t, GetTotalMemory())
}
