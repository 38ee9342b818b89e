package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
)

const (
	tableName = "mizumi__core_tokenaccount"

	allColumns = `id, address, owner, mint, balance, version, created_at`
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Address   string        `db:"address"`
	Owner     string        `db:"owner"`
	Mint      string        `db:"mint"`
	Balance   uint64        `db:"balance"`
	Version   uint64        `db:"version"`
	CreatedAt time.Time     `db:"created_at"`
}

func toModel(obj *token.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:   obj.Address,
		Owner:     obj.Owner,
		Mint:      obj.Mint,
		Balance:   obj.Balance,
		Version:   obj.Version,
		CreatedAt: obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *token.Record {
	return &token.Record{
		Id:        uint64(m.Id.Int64),
		Address:   m.Address,
		Owner:     m.Owner,
		Mint:      m.Mint,
		Balance:   m.Balance,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, owner, mint, balance, version, created_at)
			VALUES ($1, $2, $3, $4, 1, $5)
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Owner,
			m.Mint,
			m.Balance,
			m.CreatedAt,
		).StructScan(m)
		return pgutil.CheckUniqueViolation(err, token.ErrAccountExists)
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
		return nil, pgutil.CheckNoRows(err, token.ErrAccountNotFound)
	}
	return res, nil
}

func dbDeposit(ctx context.Context, db *sqlx.DB, address string, amount uint64) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		existing, err := dbGetForUpdate(ctx, tx, address)
		if err != nil {
			return err
		}

		if err := token.CheckDeposit(fromModel(existing), amount); err != nil {
			return err
		}

		return dbSetBalance(ctx, tx, address, existing.Balance+amount)
	})
}

func dbTransfer(ctx context.Context, db *sqlx.DB, source, destination, authority string, amount uint64) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		// Rows are always locked in address order
		first, second := source, destination
		if second < first {
			first, second = second, first
		}

		locked := make(map[string]*model)
		for _, address := range []string{first, second} {
			if _, ok := locked[address]; ok {
				continue
			}

			m, err := dbGetForUpdate(ctx, tx, address)
			if err != nil {
				return err
			}
			locked[address] = m
		}

		sourceRecord := fromModel(locked[source])
		destinationRecord := fromModel(locked[destination])
		if err := token.CheckTransfer(sourceRecord, destinationRecord, authority, amount); err != nil {
			return err
		}

		if source == destination {
			return nil
		}

		if err := dbSetBalance(ctx, tx, source, sourceRecord.Balance-amount); err != nil {
			return err
		}
		return dbSetBalance(ctx, tx, destination, destinationRecord.Balance+amount)
	})
}

func dbGetForUpdate(ctx context.Context, tx *sqlx.Tx, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address = $1
		FOR UPDATE`

	err := tx.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, token.ErrAccountNotFound)
	}
	return res, nil
}

func dbSetBalance(ctx context.Context, tx *sqlx.Tx, address string, balance uint64) error {
	query := `UPDATE ` + tableName + `
		SET balance = $2, version = version + 1
		WHERE address = $1`

	_, err := tx.ExecContext(ctx, query, address, balance)
	return err
}
