package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) swap.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements swap.Store.Put
func (s *store) Put(ctx context.Context, record *swap.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	if err := obj.dbPut(ctx, s.db); err != nil {
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

// Update implements swap.Store.Update
func (s *store) Update(ctx context.Context, record *swap.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	if err := obj.dbUpdate(ctx, s.db); err != nil {
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

// GetByAddress implements swap.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*swap.Record, error) {
	obj, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// GetByOwnerAndSwapId implements swap.Store.GetByOwnerAndSwapId
func (s *store) GetByOwnerAndSwapId(ctx context.Context, owner, swapId string) (*swap.Record, error) {
	obj, err := dbGetByOwnerAndSwapId(ctx, s.db, owner, swapId)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// GetAllByOwner implements swap.Store.GetAllByOwner
func (s *store) GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*swap.Record, error) {
	models, err := dbGetAllByOwner(ctx, s.db, owner, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*swap.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// CountByOwner implements swap.Store.CountByOwner
func (s *store) CountByOwner(ctx context.Context, owner string) (uint64, error) {
	return dbCountByOwner(ctx, s.db, owner)
}
