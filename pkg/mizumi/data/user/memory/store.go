package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
)

type store struct {
	mu      sync.Mutex
	records []*user.Record
	last    uint64
}

func New() user.Store {
	return &store{}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}

func (s *store) Put(_ context.Context, data *user.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(data); item != nil {
		return user.ErrExists
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

func (s *store) Update(_ context.Context, data *user.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(data.Address)
	if item == nil {
		return user.ErrNotFound
	}

	if item.Version != data.Version {
		return user.ErrStaleVersion
	}

	item.SwapCount = data.SwapCount
	item.TotalSettledValue = data.TotalSettledValue
	item.Version++

	item.CopyTo(data)

	return nil
}

func (s *store) GetByAddress(_ context.Context, address string) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, user.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetByOwner(_ context.Context, owner string) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByOwner(owner)
	if item == nil {
		return nil, user.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) find(data *user.Record) *user.Record {
	for _, item := range s.records {
		if item.Address == data.Address || item.Owner == data.Owner {
			return item
		}
	}
	return nil
}

func (s *store) findByAddress(address string) *user.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}

func (s *store) findByOwner(owner string) *user.Record {
	for _, item := range s.records {
		if item.Owner == owner {
			return item
		}
	}
	return nil
}
