package user

import (
	"errors"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

// Record is the ledger entry kept for every registered user
type Record struct {
	Id uint64

	Address string
	Bump    uint8

	Owner string

	SwapCount         uint64
	TotalSettledValue uint64

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

	if r.SwapCount > common.MaxAmount {
		return errors.New("swap count exceeds the storable maximum")
	}

	if r.TotalSettledValue > common.MaxAmount {
		return errors.New("total settled value exceeds the storable maximum")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,
		Bump:    r.Bump,

		Owner: r.Owner,

		SwapCount:         r.SwapCount,
		TotalSettledValue: r.TotalSettledValue,

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Bump = r.Bump

	dst.Owner = r.Owner

	dst.SwapCount = r.SwapCount
	dst.TotalSettledValue = r.TotalSettledValue

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}
