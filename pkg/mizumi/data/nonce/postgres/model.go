package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
)

const (
	tableName = "mizumi__core_request_nonce"

	allColumns = `id, signer, value, created_at`
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Signer    string        `db:"signer"`
	Value     string        `db:"value"`
	CreatedAt time.Time     `db:"created_at"`
}

func toModel(obj *nonce.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Signer:    obj.Signer,
		Value:     obj.Value,
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *nonce.Record {
	return &nonce.Record{
		Id:        uint64(m.Id.Int64),
		Signer:    m.Signer,
		Value:     m.Value,
		CreatedAt: m.CreatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(signer, value, created_at)
			VALUES ($1, $2, $3)
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Signer,
			m.Value,
			m.CreatedAt,
		).StructScan(m)
		return pgutil.CheckUniqueViolation(err, nonce.ErrExists)
	})
}

func dbDeleteBefore(ctx context.Context, db *sqlx.DB, before time.Time) (uint64, error) {
	var deleted int64
	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `DELETE FROM ` + tableName + `
			WHERE created_at < $1`

		res, err := tx.ExecContext(ctx, query, before)
		if err != nil {
			return err
		}

		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return uint64(deleted), nil
}
