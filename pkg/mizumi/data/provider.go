package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pg "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/database/query"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"

	nonce_memory_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce/memory"
	swap_memory_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap/memory"
	token_memory_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token/memory"
	user_memory_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user/memory"

	nonce_postgres_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce/postgres"
	swap_postgres_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap/postgres"
	token_postgres_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token/postgres"
	user_postgres_client "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user/postgres"
)

const (
	maxSwapHistoryReqSize = 100
)

type Provider interface {
	// User Records
	// --------------------------------------------------------------------------------
	CreateUser(ctx context.Context, record *user.Record) error
	UpdateUser(ctx context.Context, record *user.Record) error
	GetUserByAddress(ctx context.Context, address string) (*user.Record, error)
	GetUserByOwner(ctx context.Context, owner string) (*user.Record, error)

	// Swap Records
	// --------------------------------------------------------------------------------
	CreateSwap(ctx context.Context, record *swap.Record) error
	UpdateSwap(ctx context.Context, record *swap.Record) error
	GetSwapByAddress(ctx context.Context, address string) (*swap.Record, error)
	GetSwapByOwnerAndSwapId(ctx context.Context, owner, swapId string) (*swap.Record, error)
	GetAllSwapsByOwner(ctx context.Context, owner string, opts ...query.Option) ([]*swap.Record, error)
	CountSwapsByOwner(ctx context.Context, owner string) (uint64, error)

	// Token Accounts
	// --------------------------------------------------------------------------------
	CreateTokenAccount(ctx context.Context, record *token.Record) error
	GetTokenAccount(ctx context.Context, address string) (*token.Record, error)
	DepositTokens(ctx context.Context, address string, amount uint64) error
	GetTokenTransferrer() token.Transferrer

	// Request Nonces
	// --------------------------------------------------------------------------------
	ClaimNonce(ctx context.Context, record *nonce.Record) error
	DeleteNoncesBefore(ctx context.Context, before time.Time) (uint64, error)

	// ExecuteInTx executes fn with a single DB transaction that is scoped to the call.
	// Every store call made with the provided context joins the transaction.
	//
	// Memory stores have no transactions, so fn runs directly and callers are
	// responsible for ordering fallible steps before writes.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

type DatabaseProvider struct {
	users  user.Store
	swaps  swap.Store
	tokens token.Store
	nonces nonce.Store

	db *sqlx.DB
}

func NewDatabaseProviderFromDB(db *sql.DB) Provider {
	return &DatabaseProvider{
		users:  user_postgres_client.New(db),
		swaps:  swap_postgres_client.New(db),
		tokens: token_postgres_client.New(db),
		nonces: nonce_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}
}

func NewTestDatabaseProvider() Provider {
	return &DatabaseProvider{
		users:  user_memory_client.New(),
		swaps:  swap_memory_client.New(),
		tokens: token_memory_client.New(),
		nonces: nonce_memory_client.New(),
	}
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if dp.db == nil {
		return fn(ctx)
	}

	return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
}

// User Records
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) CreateUser(ctx context.Context, record *user.Record) error {
	return dp.users.Put(ctx, record)
}
func (dp *DatabaseProvider) UpdateUser(ctx context.Context, record *user.Record) error {
	return dp.users.Update(ctx, record)
}
func (dp *DatabaseProvider) GetUserByAddress(ctx context.Context, address string) (*user.Record, error) {
	return dp.users.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) GetUserByOwner(ctx context.Context, owner string) (*user.Record, error) {
	return dp.users.GetByOwner(ctx, owner)
}

// Swap Records
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) CreateSwap(ctx context.Context, record *swap.Record) error {
	return dp.swaps.Put(ctx, record)
}
func (dp *DatabaseProvider) UpdateSwap(ctx context.Context, record *swap.Record) error {
	return dp.swaps.Update(ctx, record)
}
func (dp *DatabaseProvider) GetSwapByAddress(ctx context.Context, address string) (*swap.Record, error) {
	return dp.swaps.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) GetSwapByOwnerAndSwapId(ctx context.Context, owner, swapId string) (*swap.Record, error) {
	return dp.swaps.GetByOwnerAndSwapId(ctx, owner, swapId)
}
func (dp *DatabaseProvider) GetAllSwapsByOwner(ctx context.Context, owner string, opts ...query.Option) ([]*swap.Record, error) {
	req, err := query.Paginate(maxSwapHistoryReqSize, opts...)
	if err != nil {
		return nil, err
	}

	return dp.swaps.GetAllByOwner(ctx, owner, req.Cursor, req.Limit, req.SortBy)
}
func (dp *DatabaseProvider) CountSwapsByOwner(ctx context.Context, owner string) (uint64, error) {
	return dp.swaps.CountByOwner(ctx, owner)
}

// Token Accounts
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) CreateTokenAccount(ctx context.Context, record *token.Record) error {
	return dp.tokens.Put(ctx, record)
}
func (dp *DatabaseProvider) GetTokenAccount(ctx context.Context, address string) (*token.Record, error) {
	return dp.tokens.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) DepositTokens(ctx context.Context, address string, amount uint64) error {
	return dp.tokens.Deposit(ctx, address, amount)
}
func (dp *DatabaseProvider) GetTokenTransferrer() token.Transferrer {
	return dp.tokens
}

// Request Nonces
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) ClaimNonce(ctx context.Context, record *nonce.Record) error {
	return dp.nonces.Put(ctx, record)
}
func (dp *DatabaseProvider) DeleteNoncesBefore(ctx context.Context, before time.Time) (uint64, error) {
	return dp.nonces.DeleteBefore(ctx, before)
}
