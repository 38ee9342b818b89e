// Package token derives token holder addresses under the SPL token programs
package token

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/mizumi-finance/mizumi-server/pkg/solana"
)

var (
	// ProgramKey owns every token holder account
	ProgramKey = mustDecodeKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssociatedTokenAccountProgramKey derives the canonical holder per wallet
	// and mint
	AssociatedTokenAccountProgramKey = mustDecodeKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// GetAssociatedAccount returns the canonical token holder of mint for wallet
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(AssociatedTokenAccountProgramKey, wallet, ProgramKey, mint)
}

func mustDecodeKey(encoded string) ed25519.PublicKey {
	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		panic("invalid program key: " + encoded)
	}
	return ed25519.PublicKey(decoded)
}
