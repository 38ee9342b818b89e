package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	q "github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/pointer"
)

const (
	tableName = "mizumi__core_swap"

	allColumns = `id, address, bump, owner, swap_id, state, stablecoin, fiat, direction, requested_amount, initiated_at, settled, settled_amount, settled_at, version, created_at`
)

type model struct {
	Id              sql.NullInt64 `db:"id"`
	Address         string        `db:"address"`
	Bump            uint8         `db:"bump"`
	Owner           string        `db:"owner"`
	SwapId          string        `db:"swap_id"`
	State           uint8         `db:"state"`
	Stablecoin      uint8         `db:"stablecoin"`
	Fiat            uint8         `db:"fiat"`
	Direction       uint8         `db:"direction"`
	RequestedAmount uint64        `db:"requested_amount"`
	InitiatedAt     sql.NullTime  `db:"initiated_at"`
	Settled         bool          `db:"settled"`
	SettledAmount   uint64        `db:"settled_amount"`
	SettledAt       sql.NullTime  `db:"settled_at"`
	Version         uint64        `db:"version"`
	CreatedAt       time.Time     `db:"created_at"`
}

func toModel(obj *swap.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	m := &model{
		Id:              sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:         obj.Address,
		Bump:            obj.Bump,
		Owner:           obj.Owner,
		SwapId:          obj.SwapId,
		State:           uint8(obj.State),
		Stablecoin:      uint8(obj.Stablecoin),
		Fiat:            uint8(obj.Fiat),
		Direction:       uint8(obj.Direction),
		RequestedAmount: obj.RequestedAmount,
		Settled:         obj.Settled,
		SettledAmount:   obj.SettledAmount,
		Version:         obj.Version,
		CreatedAt:       obj.CreatedAt,
	}

	if obj.InitiatedAt != nil {
		m.InitiatedAt = sql.NullTime{Time: *obj.InitiatedAt, Valid: true}
	}
	if obj.SettledAt != nil {
		m.SettledAt = sql.NullTime{Time: *obj.SettledAt, Valid: true}
	}

	return m, nil
}

func fromModel(m *model) *swap.Record {
	return &swap.Record{
		Id:              uint64(m.Id.Int64),
		Address:         m.Address,
		Bump:            m.Bump,
		Owner:           m.Owner,
		SwapId:          m.SwapId,
		State:           swap.State(m.State),
		Stablecoin:      common.Stablecoin(m.Stablecoin),
		Fiat:            common.Fiat(m.Fiat),
		Direction:       common.Direction(m.Direction),
		RequestedAmount: m.RequestedAmount,
		InitiatedAt:     pointer.TimeIfValid(m.InitiatedAt.Valid, m.InitiatedAt.Time),
		Settled:         m.Settled,
		SettledAmount:   m.SettledAmount,
		SettledAt:       pointer.TimeIfValid(m.SettledAt.Valid, m.SettledAt.Time),
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, bump, owner, swap_id, state, stablecoin, fiat, direction, requested_amount, initiated_at, settled, settled_amount, settled_at, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14)
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Bump,
			m.Owner,
			m.SwapId,
			m.State,
			m.Stablecoin,
			m.Fiat,
			m.Direction,
			m.RequestedAmount,
			m.InitiatedAt,
			m.Settled,
			m.SettledAmount,
			m.SettledAt,
			m.CreatedAt,
		).StructScan(m)
		return pgutil.CheckUniqueViolation(err, swap.ErrExists)
	})
}

func (m *model) dbUpdate(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET state = $2, stablecoin = $3, fiat = $4, direction = $5, requested_amount = $6, initiated_at = $7, settled = $8, settled_amount = $9, settled_at = $10, version = version + 1
			WHERE address = $1 AND version = $11
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.State,
			m.Stablecoin,
			m.Fiat,
			m.Direction,
			m.RequestedAmount,
			m.InitiatedAt,
			m.Settled,
			m.SettledAmount,
			m.SettledAt,
			m.Version,
		).StructScan(m)
		if err != nil {
			return pgutil.CheckNoRows(err, swap.ErrStaleVersion)
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
		return nil, pgutil.CheckNoRows(err, swap.ErrNotFound)
	}
	return res, nil
}

func dbGetByOwnerAndSwapId(ctx context.Context, db *sqlx.DB, owner, swapId string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE owner = $1 AND swap_id = $2
		LIMIT 1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, res, query, owner, swapId)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, swap.ErrNotFound)
	}
	return res, nil
}

func dbGetAllByOwner(ctx context.Context, db *sqlx.DB, owner string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (owner = $1)`

	opts := []interface{}{owner}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, swap.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, swap.ErrNotFound
	}
	return res, nil
}

func dbCountByOwner(ctx context.Context, db *sqlx.DB, owner string) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + `
		WHERE owner = $1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &res, query, owner)
	})
	if err != nil {
		return 0, err
	}
	return res, nil
}
