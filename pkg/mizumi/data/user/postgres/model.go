package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
)

const (
	tableName = "mizumi__core_user"

	allColumns = `id, address, bump, owner, swap_count, total_settled_value, version, created_at`
)

type model struct {
	Id                sql.NullInt64 `db:"id"`
	Address           string        `db:"address"`
	Bump              uint8         `db:"bump"`
	Owner             string        `db:"owner"`
	SwapCount         uint64        `db:"swap_count"`
	TotalSettledValue uint64        `db:"total_settled_value"`
	Version           uint64        `db:"version"`
	CreatedAt         time.Time     `db:"created_at"`
}

func toModel(obj *user.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:                sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:           obj.Address,
		Bump:              obj.Bump,
		Owner:             obj.Owner,
		SwapCount:         obj.SwapCount,
		TotalSettledValue: obj.TotalSettledValue,
		Version:           obj.Version,
		CreatedAt:         obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *user.Record {
	return &user.Record{
		Id:                uint64(m.Id.Int64),
		Address:           m.Address,
		Bump:              m.Bump,
		Owner:             m.Owner,
		SwapCount:         m.SwapCount,
		TotalSettledValue: m.TotalSettledValue,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, bump, owner, swap_count, total_settled_value, version, created_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6)
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Bump,
			m.Owner,
			m.SwapCount,
			m.TotalSettledValue,
			m.CreatedAt,
		).StructScan(m)
		return pgutil.CheckUniqueViolation(err, user.ErrExists)
	})
}

func (m *model) dbUpdate(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET swap_count = $2, total_settled_value = $3, version = version + 1
			WHERE address = $1 AND version = $4
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.SwapCount,
			m.TotalSettledValue,
			m.Version,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, user.ErrStaleVersion)
		}
		return nil
	})
}

func dbGetByAddress(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, res, query, address)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, user.ErrNotFound)
	}
	return res, nil
}

func dbGetByOwner(ctx context.Context, db *sqlx.DB, owner string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE owner = $1
		LIMIT 1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, res, query, owner)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, user.ErrNotFound)
	}
	return res, nil
}
