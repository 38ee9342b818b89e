package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) user.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements user.Store.Put
func (s *store) Put(ctx context.Context, record *user.Record) error {
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

// Update implements user.Store.Update
func (s *store) Update(ctx context.Context, record *user.Record) error {
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

// GetByAddress implements user.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*user.Record, error) {
	obj, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// GetByOwner implements user.Store.GetByOwner
func (s *store) GetByOwner(ctx context.Context, owner string) (*user.Record, error) {
	obj, err := dbGetByOwner(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}
