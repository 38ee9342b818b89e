package ledger

import (
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/lock"
)

const (
	defaultLockStripes   = 1024
	defaultMaxTxAttempts = 5
)

type conf struct {
	clock       func() time.Time
	lockStripes uint
	lockManager lock.Manager

	maxTxAttempts uint
}

// Option configures a Ledger
type Option func(c *conf)

// WithClock sets the clock used for record timestamps
func WithClock(clock func() time.Time) Option {
	return func(c *conf) {
		c.clock = clock
	}
}

// WithLockStripes sets the number of in-process user lock stripes
func WithLockStripes(stripes uint) Option {
	return func(c *conf) {
		c.lockStripes = stripes
	}
}

// WithDistributedLocks serializes operations on a user across every replica
// sharing the lock manager
func WithDistributedLocks(manager lock.Manager) Option {
	return func(c *conf) {
		c.lockManager = manager
	}
}

// WithMaxTxAttempts bounds how many times a user transaction is attempted
// when it keeps failing with serialization errors
func WithMaxTxAttempts(attempts uint) Option {
	return func(c *conf) {
		c.maxTxAttempts = attempts
	}
}

func defaultConf() *conf {
	return &conf{
		clock:         time.Now,
		lockStripes:   defaultLockStripes,
		maxTxAttempts: defaultMaxTxAttempts,
	}
}
