package swap

import (
	"errors"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/pointer"
)

type State uint8

const (
	StateUnknown State = iota
	StateCreated
	StateInitiated
	StateCompleted
)

// Record is the ledger entry for a single swap, addressed by (owner, swap id)
type Record struct {
	Id uint64

	Address string
	Bump    uint8

	Owner  string
	SwapId string

	State State

	// Terms, populated when the swap is initiated
	Stablecoin      common.Stablecoin
	Fiat            common.Fiat
	Direction       common.Direction
	RequestedAmount uint64
	InitiatedAt     *time.Time

	// Outcome, populated when the swap is completed
	Settled       bool
	SettledAmount uint64
	SettledAt     *time.Time

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

	if len(r.SwapId) == 0 {
		return errors.New("swap id is required")
	}

	if r.RequestedAmount > common.MaxAmount || r.SettledAmount > common.MaxAmount {
		return errors.New("amount exceeds the storable maximum")
	}

	switch r.State {
	case StateCreated:
		if r.Stablecoin != common.StablecoinUnknown || r.Fiat != common.FiatUnknown || r.Direction != common.DirectionUnknown {
			return errors.New("created swap cannot have terms")
		}
		if r.RequestedAmount != 0 || r.InitiatedAt != nil {
			return errors.New("created swap cannot have terms")
		}
		if r.Settled || r.SettledAmount != 0 || r.SettledAt != nil {
			return errors.New("created swap cannot have an outcome")
		}
	case StateInitiated, StateCompleted:
		if !r.Stablecoin.IsValid() {
			return errors.New("stablecoin is required")
		}
		if !r.Fiat.IsValid() {
			return errors.New("fiat is required")
		}
		if !r.Direction.IsValid() {
			return errors.New("direction is required")
		}
		if r.InitiatedAt == nil {
			return errors.New("initiation timestamp is required")
		}

		if r.State == StateInitiated && (r.Settled || r.SettledAmount != 0 || r.SettledAt != nil) {
			return errors.New("initiated swap cannot have an outcome")
		}
		if r.State == StateCompleted && r.SettledAt == nil {
			return errors.New("settlement timestamp is required")
		}
	default:
		return errors.New("invalid state")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,
		Bump:    r.Bump,

		Owner:  r.Owner,
		SwapId: r.SwapId,

		State: r.State,

		Stablecoin:      r.Stablecoin,
		Fiat:            r.Fiat,
		Direction:       r.Direction,
		RequestedAmount: r.RequestedAmount,
		InitiatedAt:     pointer.TimeCopy(r.InitiatedAt),

		Settled:       r.Settled,
		SettledAmount: r.SettledAmount,
		SettledAt:     pointer.TimeCopy(r.SettledAt),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Bump = r.Bump

	dst.Owner = r.Owner
	dst.SwapId = r.SwapId

	dst.State = r.State

	dst.Stablecoin = r.Stablecoin
	dst.Fiat = r.Fiat
	dst.Direction = r.Direction
	dst.RequestedAmount = r.RequestedAmount
	dst.InitiatedAt = pointer.TimeCopy(r.InitiatedAt)

	dst.Settled = r.Settled
	dst.SettledAmount = r.SettledAmount
	dst.SettledAt = pointer.TimeCopy(r.SettledAt)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitiated:
		return "initiated"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}
