package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
)

type store struct {
	mu      sync.Mutex
	records []*token.Record
	last    uint64
}

func New() token.Store {
	return &store{}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}

func (s *store) Put(_ context.Context, data *token.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(data.Address); item != nil {
		return token.ErrAccountExists
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

func (s *store) GetByAddress(_ context.Context, address string) (*token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, token.ErrAccountNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) Deposit(_ context.Context, address string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(address)
	if item == nil {
		return token.ErrAccountNotFound
	}

	if err := token.CheckDeposit(item, amount); err != nil {
		return err
	}

	item.Balance += amount
	item.Version++

	return nil
}

func (s *store) Transfer(_ context.Context, source, destination, authority string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceItem := s.findByAddress(source)
	destinationItem := s.findByAddress(destination)
	if sourceItem == nil || destinationItem == nil {
		return token.ErrAccountNotFound
	}

	if err := token.CheckTransfer(sourceItem, destinationItem, authority, amount); err != nil {
		return err
	}

	if sourceItem == destinationItem {
		return nil
	}

	sourceItem.Balance -= amount
	sourceItem.Version++

	destinationItem.Balance += amount
	destinationItem.Version++

	return nil
}

func (s *store) findByAddress(address string) *token.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}
