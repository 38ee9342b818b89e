package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	// MaxSeedLength is the largest seed accepted by CreateProgramAddress
	MaxSeedLength = maxSeedLength
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrBumpSeedNotFound      = errors.New("unable to find a viable bump seed")

	ErrInvalidPublicKey = errors.New("invalid public key")
)

var (
	programHashCtor = sha256.New

	programDerivedAddressMarker = []byte("ProgramDerivedAddress")
)

// CreateProgramAddress derives an address owned by program from a set of seeds.
//
// Every seed is written to the hash prefixed by its length, so that distinct
// seed tuples can never produce the same preimage (ie. ["ab", "c"] and
// ["a", "bc"] hash differently). The program key and a fixed marker are
// appended after the seeds.
//
// Derived addresses _must not_ lie on the ed25519 curve, which guarantees there
// is no private key for them. The only party that can authorize on behalf of a
// derived address is the program that can recompute it. If the hash lands on
// the curve, ErrInvalidPublicKey is returned and the caller is expected to try
// another bump seed (see FindProgramAddressAndBump).
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write([]byte{byte(len(s))}); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed length")
		}
		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program, programDerivedAddressMarker} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	hash := h.Sum(nil)
	var pub [32]byte
	copy(pub[:], hash)

	// edwards25519.ExtendedGroupElement is internal to golang.org/x/crypto, so
	// the decompression check relies on the jdgcs fork.
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// FindProgramAddressAndBump returns the first off-curve address for the seeds,
// searching bump seeds from 255 downwards, along with the bump that was used.
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	if len(seeds)+1 > maxSeeds {
		return nil, 0, ErrTooManySeeds
	}

	bumpSeed := []byte{math.MaxUint8}
	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateProgramAddress(program, append(seeds, bumpSeed)...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return nil, 0, err
		}

		bumpSeed[0]--
	}

	return nil, 0, ErrBumpSeedNotFound
}

// FindProgramAddress is FindProgramAddressAndBump without the bump.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

// IsOnCurve returns whether the key is a valid ed25519 point, which is never
// the case for derived addresses.
func IsOnCurve(key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}

	var pub [32]byte
	copy(pub[:], key)

	var A edwards25519.ExtendedGroupElement
	return A.FromBytes(&pub)
}
