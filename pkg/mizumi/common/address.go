package common

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/cache"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/config"
	"github.com/mizumi-finance/mizumi-server/pkg/solana"
)

const (
	derivedAddressCacheBudget = 100_000
)

var (
	ErrInvalidSwapId = errors.New("swap id must be between 1 and 32 bytes")

	derivedAddressCache = cache.NewCache("derived_address", derivedAddressCacheBudget)

	ProgramAccount, _ = NewAccountFromPublicKeyBytes(config.ProgramPublicKeyBytes)
)

// DerivedAccount is an address derived from seeds under a program, along with
// the bump seed that moved it off the ed25519 curve.
type DerivedAccount struct {
	Account *Account
	Bump    uint8
}

// GetUserRecordAddress derives the address of the owner's user record
func GetUserRecordAddress(program, owner *Account) (*DerivedAccount, error) {
	if err := owner.Validate(); err != nil {
		return nil, errors.Wrap(err, "error validating owner account")
	}

	return derive(
		program,
		[]byte(config.UserRecordTag),
		owner.PublicKey().ToBytes(),
	)
}

// GetSwapRecordAddress derives the address of the owner's swap record for swapId
func GetSwapRecordAddress(program, owner *Account, swapId string) (*DerivedAccount, error) {
	if err := owner.Validate(); err != nil {
		return nil, errors.Wrap(err, "error validating owner account")
	}

	if err := ValidateSwapId(swapId); err != nil {
		return nil, err
	}

	return derive(
		program,
		[]byte(config.SwapRecordTag),
		owner.PublicKey().ToBytes(),
		[]byte(swapId),
	)
}

// GetVaultAddress derives the custody vault for a stablecoin. The vault is its
// own token account owner, so the address doubles as its signing authority.
func GetVaultAddress(program *Account, stablecoin Stablecoin) (*DerivedAccount, error) {
	tag, err := stablecoin.VaultTag()
	if err != nil {
		return nil, err
	}

	mint, err := stablecoin.Mint()
	if err != nil {
		return nil, err
	}

	return derive(
		program,
		[]byte(tag),
		mint.PublicKey().ToBytes(),
	)
}

func ValidateSwapId(swapId string) error {
	if len(swapId) == 0 || len(swapId) > solana.MaxSeedLength {
		return ErrInvalidSwapId
	}
	return nil
}

func derive(program *Account, seeds ...[]byte) (*DerivedAccount, error) {
	cacheKey := derivedAddressCacheKey(program, seeds)
	if cached, ok := derivedAddressCache.Retrieve(cacheKey); ok {
		return cached.(*DerivedAccount), nil
	}

	address, bump, err := solana.FindProgramAddressAndBump(program.PublicKey().ToBytes(), seeds...)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving address")
	}

	account, err := NewAccountFromPublicKeyBytes(address)
	if err != nil {
		return nil, err
	}

	derived := &DerivedAccount{
		Account: account,
		Bump:    bump,
	}
	derivedAddressCache.Insert(cacheKey, derived, 1)
	return derived, nil
}

func derivedAddressCacheKey(program *Account, seeds [][]byte) string {
	parts := make([]string, 0, len(seeds)+1)
	parts = append(parts, program.PublicKey().ToBase58())
	for _, seed := range seeds {
		parts = append(parts, hex.EncodeToString(seed))
	}
	return strings.Join(parts, ":")
}
