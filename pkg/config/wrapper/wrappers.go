package wrapper

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/config"
)

// ErrUnsupportedConversion is returned when the source yields a type the
// wrapper cannot convert
var ErrUnsupportedConversion = errors.New("config: wrapper conversion from source type not implemented")

type converter[T any] func(raw interface{}) (T, error)

// typedConfig falls back to a default value when the source is unset, and to
// the last good value when the source fails.
type typedConfig[T any] struct {
	source       config.Config
	defaultValue T
	convert      converter[T]

	mu        sync.RWMutex
	lastValue T
}

func newTypedConfig[T any](source config.Config, defaultValue T, convert converter[T]) *typedConfig[T] {
	return &typedConfig[T]{
		source:       source,
		defaultValue: defaultValue,
		convert:      convert,
		lastValue:    defaultValue,
	}
}

// GetSafe returns the current value. On error, the last good value is returned
// alongside it.
func (c *typedConfig[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := c.source.Get(ctx)
	if err == config.ErrNoValue {
		c.set(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return c.last(), err
	}

	value, err := c.convert(raw)
	if err != nil {
		return c.last(), err
	}

	c.set(value)
	return value, nil
}

// Get is GetSafe without the error
func (c *typedConfig[T]) Get(ctx context.Context) T {
	value, _ := c.GetSafe(ctx)
	return value
}

func (c *typedConfig[T]) Shutdown() {
	c.source.Shutdown()
}

func (c *typedConfig[T]) last() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastValue
}

func (c *typedConfig[T]) set(value T) {
	c.mu.Lock()
	c.lastValue = value
	c.mu.Unlock()
}

// NewStringConfig wraps source as a string config
func NewStringConfig(source config.Config, defaultValue string) config.String {
	return newTypedConfig(source, defaultValue, func(raw interface{}) (string, error) {
		switch v := raw.(type) {
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		default:
			return "", ErrUnsupportedConversion
		}
	})
}

// NewBoolConfig wraps source as a bool config. Byte and string values are
// parsed with strconv.ParseBool.
func NewBoolConfig(source config.Config, defaultValue bool) config.Bool {
	return newTypedConfig(source, defaultValue, func(raw interface{}) (bool, error) {
		switch v := raw.(type) {
		case []byte:
			return strconv.ParseBool(strings.TrimSpace(string(v)))
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		case bool:
			return v, nil
		default:
			return false, ErrUnsupportedConversion
		}
	})
}
