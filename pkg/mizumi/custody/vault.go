package custody

import (
	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

// Vault is the custody account for a single stablecoin. Its token account
// address is derived under the program and is also its own owner, so transfers
// out of the vault are authorized by a signer rederived from public data.
type Vault struct {
	stablecoin common.Stablecoin
	mint       *common.Account
	address    *common.DerivedAccount

	signer vaultSigner
}

// vaultSigner is the capability to authorize transfers out of a vault. It
// never leaves this package.
type vaultSigner struct {
	authority *common.Account
}

func (s vaultSigner) authorize() string {
	return s.authority.PublicKey().ToBase58()
}

func newVault(program *common.Account, stablecoin common.Stablecoin) (*Vault, error) {
	mint, err := stablecoin.Mint()
	if err != nil {
		return nil, err
	}

	address, err := common.GetVaultAddress(program, stablecoin)
	if err != nil {
		return nil, errors.Wrapf(err, "error deriving %s vault", stablecoin)
	}

	return &Vault{
		stablecoin: stablecoin,
		mint:       mint,
		address:    address,
		signer: vaultSigner{
			authority: address.Account,
		},
	}, nil
}

func (v *Vault) Stablecoin() common.Stablecoin {
	return v.stablecoin
}

func (v *Vault) Mint() *common.Account {
	return v.mint
}

// Address is both the vault's token account and its authority
func (v *Vault) Address() *common.Account {
	return v.address.Account
}

func (v *Vault) Bump() uint8 {
	return v.address.Bump
}
