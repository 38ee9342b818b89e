package token

import (
	"context"
	"errors"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

var (
	ErrAccountNotFound     = errors.New("token account not found")
	ErrAccountExists       = errors.New("token account already exists")
	ErrMintMismatch        = errors.New("token account mints do not match")
	ErrOwnerMismatch       = errors.New("authority is not the token account owner")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrBalanceOverflow     = errors.New("token balance overflow")
)

// Transferrer moves units of a mint between token accounts
type Transferrer interface {
	// Transfer moves amount from source to destination. The authority must
	// own the source account, and both accounts must hold the same mint.
	Transfer(ctx context.Context, source, destination, authority string, amount uint64) error
}

type Store interface {
	Transferrer

	// Put creates a new token account
	//
	// ErrAccountExists is returned if an account already exists at the address
	Put(ctx context.Context, record *Record) error

	// GetByAddress gets a token account by its address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// Deposit credits an account with funds originating outside the ledger
	Deposit(ctx context.Context, address string, amount uint64) error
}

// CheckTransfer validates a transfer against the current state of both accounts
func CheckTransfer(source, destination *Record, authority string, amount uint64) error {
	if source.Mint != destination.Mint {
		return ErrMintMismatch
	}

	if source.Owner != authority {
		return ErrOwnerMismatch
	}

	if source.Balance < amount {
		return ErrInsufficientBalance
	}

	if source.Address != destination.Address {
		return CheckDeposit(destination, amount)
	}

	return nil
}

// CheckDeposit validates that crediting amount keeps the balance storable
func CheckDeposit(destination *Record, amount uint64) error {
	if _, ok := common.AddAmounts(destination.Balance, amount); !ok {
		return ErrBalanceOverflow
	}
	return nil
}
