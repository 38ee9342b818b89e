package custody

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

var (
	ErrTransferFailed   = errors.New("custody transfer failed")
	ErrUnsupportedRoute = errors.New("unsupported custody route")
	ErrVaultNotFound    = errors.New("vault not found")
)

// TransferError is returned when the token transfer primitive rejects a
// custody movement. It matches ErrTransferFailed with errors.Is, and unwraps to
// the primitive's error.
type TransferError struct {
	Stablecoin common.Stablecoin
	Direction  common.Direction
	Amount     uint64

	cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s %s of %d: %s", ErrTransferFailed, e.Stablecoin, e.Direction, e.Amount, e.cause)
}

func (e *TransferError) Unwrap() error {
	return e.cause
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}
