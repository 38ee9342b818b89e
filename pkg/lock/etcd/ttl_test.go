package etcd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLockManager_InvalidTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Minute} {
		_, err := NewLockManager(nil, "/locks", ttl, "replica")
		assert.Equal(t, ErrInvalidTTL, err)
	}
}
