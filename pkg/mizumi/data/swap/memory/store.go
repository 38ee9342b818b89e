package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/pointer"
)

type ById []*swap.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*swap.Record
	last    uint64
}

func New() swap.Store {
	return &store{}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}

func (s *store) Put(_ context.Context, data *swap.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(data); item != nil {
		return swap.ErrExists
	}

	s.last++
	data.Id = s.last
	data.Version = 1
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}

	cloned := data.Clone()
	s.records = append(s.records, &cloned)

	return nil
}

func (s *store) Update(_ context.Context, data *swap.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(data.Address)
	if item == nil {
		return swap.ErrNotFound
	}

	if item.Version != data.Version {
		return swap.ErrStaleVersion
	}

	item.State = data.State

	item.Stablecoin = data.Stablecoin
	item.Fiat = data.Fiat
	item.Direction = data.Direction
	item.RequestedAmount = data.RequestedAmount
	item.InitiatedAt = pointer.TimeCopy(data.InitiatedAt)

	item.Settled = data.Settled
	item.SettledAmount = data.SettledAmount
	item.SettledAt = pointer.TimeCopy(data.SettledAt)

	item.Version++

	item.CopyTo(data)

	return nil
}

func (s *store) GetByAddress(_ context.Context, address string) (*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, swap.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetByOwnerAndSwapId(_ context.Context, owner, swapId string) (*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.records {
		if item.Owner == owner && item.SwapId == swapId {
			cloned := item.Clone()
			return &cloned, nil
		}
	}
	return nil, swap.ErrNotFound
}

func (s *store) GetAllByOwner(_ context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.findByOwner(owner)
	if len(items) == 0 {
		return nil, swap.ErrNotFound
	}

	res := s.filter(items, cursor, limit, direction)
	if len(res) == 0 {
		return nil, swap.ErrNotFound
	}
	return res, nil
}

func (s *store) CountByOwner(_ context.Context, owner string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.findByOwner(owner))), nil
}

func (s *store) find(data *swap.Record) *swap.Record {
	for _, item := range s.records {
		if item.Address == data.Address {
			return item
		}
		if item.Owner == data.Owner && item.SwapId == data.SwapId {
			return item
		}
	}
	return nil
}

func (s *store) findByAddress(address string) *swap.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}

func (s *store) findByOwner(owner string) []*swap.Record {
	var res []*swap.Record
	for _, item := range s.records {
		if item.Owner == owner {
			res = append(res, item)
		}
	}
	return res
}

func (s *store) filter(items []*swap.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*swap.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*swap.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	} else {
		sort.Sort(ById(res))
	}

	if limit > 0 && len(res) > int(limit) {
		res = res[:limit]
	}

	cloned := make([]*swap.Record, len(res))
	for i, item := range res {
		c := item.Clone()
		cloned[i] = &c
	}
	return cloned
}
