package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_InsertAndRetrieve(t *testing.T) {
	c := NewCache("test", 10)

	_, ok := c.Retrieve("a")
	assert.False(t, ok)

	c.Insert("a", "value-a", 1)
	c.Insert("b", "value-b", 2)

	actual, ok := c.Retrieve("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", actual)
	assert.Equal(t, 3, c.Weight())
	assert.Equal(t, 10, c.Budget())

	c.Insert("a", "value-a2", 4)
	actual, ok = c.Retrieve("a")
	require.True(t, ok)
	assert.Equal(t, "value-a2", actual)
	assert.Equal(t, 6, c.Weight())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache("test", 3)

	c.Insert("a", 1, 1)
	c.Insert("b", 2, 1)
	c.Insert("c", 3, 1)

	// a becomes the most recently used, so b is the next eviction
	_, ok := c.Retrieve("a")
	require.True(t, ok)

	c.Insert("d", 4, 1)

	_, ok = c.Retrieve("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c", "d"} {
		_, ok = c.Retrieve(key)
		assert.True(t, ok, key)
	}
	assert.Equal(t, 3, c.Weight())

	c.Insert("heavy", 5, 3)
	assert.Equal(t, 3, c.Weight())
	for _, key := range []string{"a", "c", "d"} {
		_, ok = c.Retrieve(key)
		assert.False(t, ok, key)
	}

	c.Insert("too-heavy", 6, 4)
	assert.Equal(t, 0, c.Weight())
	_, ok = c.Retrieve("too-heavy")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := NewCache("test", 10)
	c.Insert("a", 1, 5)
	c.Clear()

	_, ok := c.Retrieve("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Weight())

	c.Insert("b", 2, 1)
	_, ok = c.Retrieve("b")
	assert.True(t, ok)
}

func TestCache_Concurrency(t *testing.T) {
	c := NewCache("test", 50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", worker, j%20)
				c.Insert(key, j, 1)
				c.Retrieve(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Weight(), c.Budget())
}
