package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/mizumi-finance/mizumi-server/pkg/config"
)

var errInduced = errors.New("memory config: induced error")

// Config is a mutable in memory config for tests and local development
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	err      error
	shutdown bool
}

// NewConfig returns a Config holding value. A nil value behaves as unset.
func NewConfig(value interface{}) *Config {
	return &Config{
		value: value,
	}
}

// Get implements Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.shutdown {
		return nil, config.ErrShutdown
	}

	if c.err != nil {
		return nil, c.err
	}
	if c.value == nil {
		return nil, config.ErrNoValue
	}
	return c.value, nil
}

// Shutdown implements Config.Shutdown
func (c *Config) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
}

// SetValue replaces the current value
func (c *Config) SetValue(value interface{}) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// ClearValue unsets the value, so Get returns config.ErrNoValue
func (c *Config) ClearValue() {
	c.mu.Lock()
	c.value = nil
	c.mu.Unlock()
}

// InduceErrors makes Get fail until StopInducingErrors is called
func (c *Config) InduceErrors() {
	c.mu.Lock()
	c.err = errInduced
	c.mu.Unlock()
}

// StopInducingErrors undoes InduceErrors
func (c *Config) StopInducingErrors() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
}
