package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) token.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements token.Store.Put
func (s *store) Put(ctx context.Context, record *token.Record) error {
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

// GetByAddress implements token.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*token.Record, error) {
	obj, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

// Deposit implements token.Store.Deposit
func (s *store) Deposit(ctx context.Context, address string, amount uint64) error {
	return dbDeposit(ctx, s.db, address, amount)
}

// Transfer implements token.Store.Transfer
func (s *store) Transfer(ctx context.Context, source, destination, authority string, amount uint64) error {
	return dbTransfer(ctx, s.db, source, destination, authority, amount)
}
