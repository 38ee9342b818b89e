package common

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/config"
)

// Stablecoin is a supported stablecoin asset held in custody
type Stablecoin uint8

const (
	StablecoinUnknown Stablecoin = iota
	StablecoinUsdc
	StablecoinUsdt
)

// Fiat is a supported fiat currency on the off-chain leg of a swap
type Fiat uint8

const (
	FiatUnknown Fiat = iota
	FiatGhs
	FiatUsd
)

// Direction is the way funds move through custody for a swap
type Direction uint8

const (
	DirectionUnknown Direction = iota

	// Custody releases stablecoins to the user for an off-chain fiat deposit
	DirectionOnramp

	// The user deposits stablecoins into custody for an off-chain fiat payout
	DirectionOfframp
)

var (
	SupportedStablecoins = []Stablecoin{StablecoinUsdc, StablecoinUsdt}
	SupportedFiats       = []Fiat{FiatGhs, FiatUsd}
	SupportedDirections  = []Direction{DirectionOnramp, DirectionOfframp}
)

var (
	UsdcMintAccount, _ = NewAccountFromPublicKeyBytes(config.UsdcMintPublicKeyBytes)
	UsdtMintAccount, _ = NewAccountFromPublicKeyBytes(config.UsdtMintPublicKeyBytes)
)

func ParseStablecoin(value string) (Stablecoin, error) {
	switch strings.ToLower(value) {
	case "usdc":
		return StablecoinUsdc, nil
	case "usdt":
		return StablecoinUsdt, nil
	}
	return StablecoinUnknown, errors.Errorf("unsupported stablecoin: %s", value)
}

// Mint returns the token mint of the stablecoin
func (s Stablecoin) Mint() (*Account, error) {
	switch s {
	case StablecoinUsdc:
		return UsdcMintAccount, nil
	case StablecoinUsdt:
		return UsdtMintAccount, nil
	}
	return nil, errors.Errorf("no mint for stablecoin %d", s)
}

// VaultTag returns the seed tag the stablecoin's vault is derived with
func (s Stablecoin) VaultTag() (string, error) {
	switch s {
	case StablecoinUsdc:
		return config.UsdcVaultTag, nil
	case StablecoinUsdt:
		return config.UsdtVaultTag, nil
	}
	return "", errors.Errorf("no vault for stablecoin %d", s)
}

func (s Stablecoin) IsValid() bool {
	return s == StablecoinUsdc || s == StablecoinUsdt
}

func (s Stablecoin) String() string {
	switch s {
	case StablecoinUsdc:
		return "usdc"
	case StablecoinUsdt:
		return "usdt"
	}
	return "unknown"
}

func ParseFiat(value string) (Fiat, error) {
	switch strings.ToLower(value) {
	case "ghs":
		return FiatGhs, nil
	case "usd":
		return FiatUsd, nil
	}
	return FiatUnknown, errors.Errorf("unsupported fiat currency: %s", value)
}

func (f Fiat) IsValid() bool {
	return f == FiatGhs || f == FiatUsd
}

func (f Fiat) String() string {
	switch f {
	case FiatGhs:
		return "ghs"
	case FiatUsd:
		return "usd"
	}
	return "unknown"
}

func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(value) {
	case "onramp":
		return DirectionOnramp, nil
	case "offramp":
		return DirectionOfframp, nil
	}
	return DirectionUnknown, errors.Errorf("unsupported direction: %s", value)
}

func (d Direction) IsValid() bool {
	return d == DirectionOnramp || d == DirectionOfframp
}

func (d Direction) String() string {
	switch d {
	case DirectionOnramp:
		return "onramp"
	case DirectionOfframp:
		return "offramp"
	}
	return "unknown"
}
