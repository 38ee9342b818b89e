package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrExists       = errors.New("user already exists")
	ErrStaleVersion = errors.New("user version is stale")
)

type Store interface {
	// Put creates a new user record
	//
	// ErrExists is returned if a record already exists at the address
	Put(ctx context.Context, record *Record) error

	// Update updates the counters of an existing user record
	//
	// ErrStaleVersion is returned if the record was updated since it was read
	Update(ctx context.Context, record *Record) error

	// GetByAddress gets a user record by its derived address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByOwner gets a user record by the owner's public key
	GetByOwner(ctx context.Context, owner string) (*Record, error)
}
