package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
)

type key struct {
	signer string
	value  string
}

type store struct {
	mu      sync.Mutex
	records map[key]*nonce.Record
	last    uint64
}

func New() nonce.Store {
	return &store{
		records: make(map[key]*nonce.Record),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[key]*nonce.Record)
	s.last = 0
}

func (s *store) Put(_ context.Context, data *nonce.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{signer: data.Signer, value: data.Value}
	if _, ok := s.records[k]; ok {
		return nonce.ErrExists
	}

	s.last++
	data.Id = s.last
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}

	cloned := data.Clone()
	s.records[k] = &cloned

	return nil
}

func (s *store) DeleteBefore(_ context.Context, before time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted uint64
	for k, item := range s.records {
		if item.CreatedAt.Before(before) {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted, nil
}
