package env

import (
	"context"
	"os"
	"strings"

	"github.com/mizumi-finance/mizumi-server/pkg/config"
	"github.com/mizumi-finance/mizumi-server/pkg/config/wrapper"
)

type envConfig struct {
	key string
}

// NewConfig returns a Config backed by an environment variable. The variable
// is read on every Get, so changes made with os.Setenv are observed.
func NewConfig(key string) config.Config {
	return &envConfig{
		key: strings.ToUpper(key),
	}
}

// Get implements config.Config.Get
func (c *envConfig) Get(_ context.Context) (interface{}, error) {
	val, ok := os.LookupEnv(c.key)
	if !ok || len(val) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(val), nil
}

// Shutdown implements config.Config.Shutdown
func (c *envConfig) Shutdown() {
}

// NewStringConfig returns a string config read from the environment
func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

// NewBoolConfig returns a bool config read from the environment
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}
