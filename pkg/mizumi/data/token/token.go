package token

import (
	"errors"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

// Record is a token account holding a balance of a single mint
type Record struct {
	Id uint64

	Address string

	// Owner is the only key allowed to authorize transfers out of the account
	Owner string

	Mint string

	Balance uint64

	Version uint64

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if len(r.Mint) == 0 {
		return errors.New("mint is required")
	}

	if r.Balance > common.MaxAmount {
		return errors.New("balance exceeds the storable maximum")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:        r.Id,
		Address:   r.Address,
		Owner:     r.Owner,
		Mint:      r.Mint,
		Balance:   r.Balance,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Address = r.Address
	dst.Owner = r.Owner
	dst.Mint = r.Mint
	dst.Balance = r.Balance
	dst.Version = r.Version
	dst.CreatedAt = r.CreatedAt
}
