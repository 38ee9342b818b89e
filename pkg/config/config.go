package config

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNoValue is returned when a source has no value for the key
	ErrNoValue = errors.New("config: no value set")

	// ErrShutdown is returned when a source is used after Shutdown
	ErrShutdown = errors.New("config: shutdown")
)

// Config is a raw, untyped source of a single configuration value. Values may
// change between calls, which allows operators to update settings such as the
// admin key set without restarting the server.
type Config interface {
	Get(ctx context.Context) (interface{}, error)

	Shutdown()
}

// String is a string valued Config
type String interface {
	Get(ctx context.Context) string
	GetSafe(ctx context.Context) (string, error)
	Shutdown()
}

// Bool is a bool valued Config
type Bool interface {
	Get(ctx context.Context) bool
	GetSafe(ctx context.Context) (bool, error)
	Shutdown()
}
