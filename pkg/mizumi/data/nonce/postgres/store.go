package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) nonce.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements nonce.Store.Put
func (s *store) Put(ctx context.Context, record *nonce.Record) error {
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

// DeleteBefore implements nonce.Store.DeleteBefore
func (s *store) DeleteBefore(ctx context.Context, before time.Time) (uint64, error) {
	return dbDeleteBefore(ctx, s.db, before)
}
