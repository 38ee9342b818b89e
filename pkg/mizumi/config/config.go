package config

import (
	"github.com/mr-tron/base58"
)

// todo: make the mint and program keys environment configs once a devnet deployment exists

const (
	// ProgramPublicKeyString is the key every ledger record address is derived under
	ProgramPublicKeyString = "6pm1yXLY9AHUSwQmsK481YJaKgfChgjCkzvXQoZsRUg"

	// Random value. Replace with the real admin public key, or override it
	// through the admin_public_keys app config.
	AdminPublicKeyString = "84ydcM4Yp59W6aZP6eSaKiAMaKidNLfb5k318sT2pm14"

	UsdcMintPublicKeyString = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	UsdcDecimals            = 6

	UsdtMintPublicKeyString = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	UsdtDecimals            = 6

	// Seed tags for derived record addresses
	UserRecordTag = "user-account"
	SwapRecordTag = "swap-account"
	UsdcVaultTag  = "usdc-vault"
	UsdtVaultTag  = "usdt-vault"
)

var (
	ProgramPublicKeyBytes  []byte
	AdminPublicKeyBytes    []byte
	UsdcMintPublicKeyBytes []byte
	UsdtMintPublicKeyBytes []byte
)

func init() {
	ProgramPublicKeyBytes = mustDecode(ProgramPublicKeyString)
	AdminPublicKeyBytes = mustDecode(AdminPublicKeyString)
	UsdcMintPublicKeyBytes = mustDecode(UsdcMintPublicKeyString)
	UsdtMintPublicKeyBytes = mustDecode(UsdtMintPublicKeyString)
}

func mustDecode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
