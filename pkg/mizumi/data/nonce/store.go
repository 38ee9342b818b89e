package nonce

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExists = errors.New("nonce already used")
)

type Store interface {
	// Put consumes a nonce for a signer
	//
	// ErrExists is returned if the signer already used the nonce
	Put(ctx context.Context, record *Record) error

	// DeleteBefore removes nonces consumed before the provided time and returns
	// the number removed
	DeleteBefore(ctx context.Context, before time.Time) (uint64, error)
}
