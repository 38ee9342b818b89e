package ledger

import (
	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/custody"
)

var (
	// ErrUnauthorized is returned when the caller fails the admin gate
	ErrUnauthorized = auth.ErrUnauthorized

	// ErrAlreadyExists is returned on duplicate user registration or a
	// duplicate swap record address
	ErrAlreadyExists = errors.New("record already exists")

	// ErrNotFirstSwap is returned when opening a first swap for a user that
	// already has swaps
	ErrNotFirstSwap = errors.New("user already has swaps")

	// ErrFirstSwapRequired is returned when opening a subsequent swap for a user
	// that has no swaps yet
	ErrFirstSwapRequired = errors.New("user has no swaps, open a first swap instead")

	// ErrPrecursorMissing is returned when an operation targets a record that
	// doesn't exist or is at the wrong stage
	ErrPrecursorMissing = errors.New("required record is missing or at the wrong stage")

	// ErrTransferFailed is returned when custody rejects the movement of funds
	ErrTransferFailed = custody.ErrTransferFailed

	ErrInvalidSwapId = common.ErrInvalidSwapId
	ErrInvalidOwner  = errors.New("invalid owner")
	ErrInvalidTerms  = errors.New("unsupported stablecoin, fiat or direction")
	ErrInvalidAmount = errors.New("amount exceeds the maximum supported amount")
	ErrOverflow      = errors.New("counter overflow")

	ErrNotFound = errors.New("record not found")
)
