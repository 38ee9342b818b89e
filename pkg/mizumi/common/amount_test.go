package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAmounts(t *testing.T) {
	sum, ok := AddAmounts(40, 2)
	assert.True(t, ok)
	assert.EqualValues(t, 42, sum)

	sum, ok = AddAmounts(MaxAmount-1, 1)
	assert.True(t, ok)
	assert.Equal(t, MaxAmount, sum)

	for _, tc := range [][2]uint64{
		{MaxAmount, 1},
		{1, MaxAmount},
		{MaxAmount + 1, 0},
		{0, MaxAmount + 1},
		{math.MaxUint64, math.MaxUint64},
	} {
		_, ok := AddAmounts(tc[0], tc[1])
		assert.False(t, ok, "%d + %d", tc[0], tc[1])
	}
}
