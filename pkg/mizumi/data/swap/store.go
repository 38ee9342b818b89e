package swap

import (
	"context"
	"errors"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
)

var (
	ErrNotFound     = errors.New("swap not found")
	ErrExists       = errors.New("swap already exists")
	ErrStaleVersion = errors.New("swap version is stale")
)

type Store interface {
	// Put creates a new swap record
	//
	// ErrExists is returned if a record already exists at the address
	Put(ctx context.Context, record *Record) error

	// Update updates the state, terms and outcome of an existing swap record
	//
	// ErrStaleVersion is returned if the record was updated since it was read
	Update(ctx context.Context, record *Record) error

	// GetByAddress gets a swap record by its derived address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByOwnerAndSwapId gets a swap record by owner and swap id
	GetByOwnerAndSwapId(ctx context.Context, owner, swapId string) (*Record, error)

	// GetAllByOwner gets a page of swap records for an owner
	GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// CountByOwner returns the number of swap records created for an owner
	CountByOwner(ctx context.Context, owner string) (uint64, error)
}
