package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/lock"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/custody"
	mizumi_data "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/testutil"
)

type testEnv struct {
	ctx     context.Context
	now     time.Time
	admin   *common.Account
	data    mizumi_data.Provider
	custody *custody.Custody
	ledger  *Ledger
}

func setup(t *testing.T, opts ...Option) (env testEnv) {
	env.ctx = context.Background()
	env.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.admin = testutil.NewRandomAccount(t)
	env.data = mizumi_data.NewTestDatabaseProvider()

	var err error
	env.custody, err = custody.New(env.data, common.ProgramAccount)
	require.NoError(t, err)
	require.NoError(t, env.custody.InitializeVaults(env.ctx))

	opts = append([]Option{WithClock(func() time.Time { return env.now })}, opts...)
	env.ledger = New(env.data, env.custody, auth.NewStaticAdminPolicy(env.admin), opts...)
	return env
}

func (e *testEnv) fundVault(t *testing.T, stablecoin common.Stablecoin, amount uint64) {
	vault, err := e.custody.GetVault(stablecoin)
	require.NoError(t, err)
	require.NoError(t, e.data.DepositTokens(e.ctx, vault.Address().PublicKey().ToBase58(), amount))
}

func (e *testEnv) fundUser(t *testing.T, owner *common.Account, stablecoin common.Stablecoin, amount uint64) {
	holder, err := e.custody.GetUserHolder(owner, stablecoin)
	require.NoError(t, err)
	require.NoError(t, e.data.DepositTokens(e.ctx, holder.PublicKey().ToBase58(), amount))
}

func (e *testEnv) vaultBalance(t *testing.T, stablecoin common.Stablecoin) uint64 {
	vault, err := e.custody.GetVault(stablecoin)
	require.NoError(t, err)
	record, err := e.data.GetTokenAccount(e.ctx, vault.Address().PublicKey().ToBase58())
	require.NoError(t, err)
	return record.Balance
}

func (e *testEnv) userBalance(t *testing.T, owner *common.Account, stablecoin common.Stablecoin) uint64 {
	holder, err := e.custody.GetUserHolder(owner, stablecoin)
	require.NoError(t, err)
	record, err := e.data.GetTokenAccount(e.ctx, holder.PublicKey().ToBase58())
	require.NoError(t, err)
	return record.Balance
}

func TestRegisterUser(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.GetUser(env.ctx, owner)
	assert.Equal(t, ErrNotFound, err)

	record, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	expectedAddress, err := common.GetUserRecordAddress(common.ProgramAccount, owner)
	require.NoError(t, err)

	assert.Equal(t, expectedAddress.Account.PublicKey().ToBase58(), record.Address)
	assert.Equal(t, expectedAddress.Bump, record.Bump)
	assert.Equal(t, owner.PublicKey().ToBase58(), record.Owner)
	assert.EqualValues(t, 0, record.SwapCount)
	assert.EqualValues(t, 0, record.TotalSettledValue)
	assert.Equal(t, env.now, record.CreatedAt)

	actual, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, record.Address, actual.Address)
	assert.EqualValues(t, 0, actual.SwapCount)

	for _, stablecoin := range common.SupportedStablecoins {
		assert.EqualValues(t, 0, env.userBalance(t, owner, stablecoin))
	}

	env.now = env.now.Add(time.Hour)

	_, err = env.ledger.RegisterUser(env.ctx, owner)
	assert.Equal(t, ErrAlreadyExists, err)

	actual, err = env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, record.Address, actual.Address)
	assert.Equal(t, record.Version, actual.Version)
	assert.Equal(t, record.CreatedAt.Unix(), actual.CreatedAt.Unix())
	assert.EqualValues(t, 0, actual.SwapCount)
	assert.EqualValues(t, 0, actual.TotalSettledValue)

	_, err = env.ledger.RegisterUser(env.ctx, nil)
	assert.Equal(t, ErrInvalidOwner, err)
}

func TestRegisterUser_NotAdminGated(t *testing.T) {
	env := setup(t)

	for i := 0; i < 5; i++ {
		_, err := env.ledger.RegisterUser(env.ctx, testutil.NewRandomAccount(t))
		require.NoError(t, err)
	}
}

func TestOpenFirstSwap(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	assert.Equal(t, ErrPrecursorMissing, err)

	_, err = env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	record, err := env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	expectedAddress, err := common.GetSwapRecordAddress(common.ProgramAccount, owner, "swap-1")
	require.NoError(t, err)

	assert.Equal(t, expectedAddress.Account.PublicKey().ToBase58(), record.Address)
	assert.Equal(t, owner.PublicKey().ToBase58(), record.Owner)
	assert.Equal(t, "swap-1", record.SwapId)
	assert.Equal(t, swap.StateCreated, record.State)
	assert.Equal(t, common.StablecoinUnknown, record.Stablecoin)
	assert.EqualValues(t, 0, record.RequestedAmount)
	assert.False(t, record.Settled)
	assert.Nil(t, record.InitiatedAt)
	assert.Nil(t, record.SettledAt)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, userRecord.SwapCount)

	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-2")
	assert.Equal(t, ErrNotFirstSwap, err)

	userRecord, err = env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, userRecord.SwapCount)
}

func TestOpenSwap(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	_, err = env.ledger.OpenSwap(env.ctx, env.admin, owner, "swap-1")
	assert.Equal(t, ErrFirstSwapRequired, err)

	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	for i := 2; i <= 5; i++ {
		record, err := env.ledger.OpenSwap(env.ctx, env.admin, owner, fmt.Sprintf("swap-%d", i))
		require.NoError(t, err)
		assert.Equal(t, swap.StateCreated, record.State)
	}

	_, err = env.ledger.OpenSwap(env.ctx, env.admin, owner, "swap-3")
	assert.Equal(t, ErrAlreadyExists, err)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 5, userRecord.SwapCount)

	records, err := env.ledger.GetSwaps(env.ctx, owner)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, record := range records {
		assert.Equal(t, fmt.Sprintf("swap-%d", i+1), record.SwapId)
	}

	records, err = env.ledger.GetSwaps(env.ctx, owner, query.WithLimit(2), query.WithDirection(query.Descending))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "swap-5", records[0].SwapId)
	assert.Equal(t, "swap-4", records[1].SwapId)
}

func TestOpenSwap_InvalidSwapId(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	for _, swapId := range []string{"", strings.Repeat("x", 33)} {
		_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, swapId)
		assert.Equal(t, ErrInvalidSwapId, err)
	}

	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, strings.Repeat("x", 32))
	assert.NoError(t, err)
}

func TestAdminGate(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)
	impostor := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	for _, caller := range []*common.Account{impostor, owner, nil} {
		_, err = env.ledger.OpenFirstSwap(env.ctx, caller, owner, "swap-1")
		assert.Equal(t, ErrUnauthorized, err)

		_, err = env.ledger.OpenSwap(env.ctx, caller, owner, "swap-1")
		assert.Equal(t, ErrUnauthorized, err)

		_, err = env.ledger.Initiate(env.ctx, caller, owner, "swap-1", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
		assert.Equal(t, ErrUnauthorized, err)

		_, err = env.ledger.Complete(env.ctx, caller, owner, "swap-1", true, 10)
		assert.Equal(t, ErrUnauthorized, err)
	}

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 0, userRecord.SwapCount)

	_, err = env.ledger.GetSwap(env.ctx, owner, "swap-1")
	assert.Equal(t, ErrNotFound, err)
}

func TestInitiate_Onramp(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 1_000)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	record, err := env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 400, common.FiatGhs, common.DirectionOnramp)
	require.NoError(t, err)

	assert.Equal(t, swap.StateInitiated, record.State)
	assert.Equal(t, common.StablecoinUsdc, record.Stablecoin)
	assert.Equal(t, common.FiatGhs, record.Fiat)
	assert.Equal(t, common.DirectionOnramp, record.Direction)
	assert.EqualValues(t, 400, record.RequestedAmount)
	require.NotNil(t, record.InitiatedAt)
	assert.Equal(t, env.now, *record.InitiatedAt)

	assert.EqualValues(t, 600, env.vaultBalance(t, common.StablecoinUsdc))
	assert.EqualValues(t, 400, env.userBalance(t, owner, common.StablecoinUsdc))
	assert.EqualValues(t, 0, env.userBalance(t, owner, common.StablecoinUsdt))

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 400, common.FiatGhs, common.DirectionOnramp)
	assert.Equal(t, ErrPrecursorMissing, err)
	assert.EqualValues(t, 600, env.vaultBalance(t, common.StablecoinUsdc))
}

func TestInitiate_Offramp(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	env.fundUser(t, owner, common.StablecoinUsdt, 250)

	record, err := env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdt, 250, common.FiatUsd, common.DirectionOfframp)
	require.NoError(t, err)
	assert.Equal(t, swap.StateInitiated, record.State)

	assert.EqualValues(t, 250, env.vaultBalance(t, common.StablecoinUsdt))
	assert.EqualValues(t, 0, env.userBalance(t, owner, common.StablecoinUsdt))
}

func TestInitiate_TransferFailureLeavesNoTrace(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 100)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 101, common.FiatUsd, common.DirectionOnramp)
	assert.True(t, errors.Is(err, ErrTransferFailed))

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 1, common.FiatUsd, common.DirectionOfframp)
	assert.True(t, errors.Is(err, ErrTransferFailed))

	record, err := env.ledger.GetSwap(env.ctx, owner, "swap-1")
	require.NoError(t, err)
	assert.Equal(t, swap.StateCreated, record.State)
	assert.EqualValues(t, 0, record.RequestedAmount)
	assert.Nil(t, record.InitiatedAt)

	assert.EqualValues(t, 100, env.vaultBalance(t, common.StablecoinUsdc))
	assert.EqualValues(t, 0, env.userBalance(t, owner, common.StablecoinUsdc))

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 1)
	assert.Equal(t, ErrPrecursorMissing, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 100, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)
}

func TestInitiate_Validation(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 100)

	_, err := env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrPrecursorMissing, err)

	_, err = env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrPrecursorMissing, err)

	_, err = env.ledger.GetSwap(env.ctx, owner, "swap-1")
	assert.Equal(t, ErrNotFound, err)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 0, userRecord.SwapCount)
	assert.EqualValues(t, 100, env.vaultBalance(t, common.StablecoinUsdc))

	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, common.MaxAmount+1, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUnknown, 10, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrInvalidTerms, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 10, common.FiatUnknown, common.DirectionOnramp)
	assert.Equal(t, ErrInvalidTerms, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionUnknown)
	assert.Equal(t, ErrInvalidTerms, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrInvalidSwapId, err)

	record, err := env.ledger.GetSwap(env.ctx, owner, "swap-1")
	require.NoError(t, err)
	assert.Equal(t, swap.StateCreated, record.State)
	assert.EqualValues(t, 100, env.vaultBalance(t, common.StablecoinUsdc))
}

func TestInitiate_ZeroAmount(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdt, 50)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	record, err := env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdt, 0, common.FiatGhs, common.DirectionOfframp)
	require.NoError(t, err)
	assert.Equal(t, swap.StateInitiated, record.State)
	assert.EqualValues(t, 0, record.RequestedAmount)

	assert.EqualValues(t, 50, env.vaultBalance(t, common.StablecoinUsdt))
	assert.EqualValues(t, 0, env.userBalance(t, owner, common.StablecoinUsdt))
}

func TestComplete(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 1_000)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 100)
	assert.Equal(t, ErrPrecursorMissing, err)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 100, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)

	env.now = env.now.Add(time.Hour)

	record, err := env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 98)
	require.NoError(t, err)
	assert.Equal(t, swap.StateCompleted, record.State)
	assert.True(t, record.Settled)
	assert.EqualValues(t, 98, record.SettledAmount)
	require.NotNil(t, record.SettledAt)
	assert.Equal(t, env.now, *record.SettledAt)
	assert.EqualValues(t, 100, record.RequestedAmount)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 98, userRecord.TotalSettledValue)
	assert.EqualValues(t, 1, userRecord.SwapCount)
}

func TestComplete_RepeatedCallsAccumulate(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdt, 1_000)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)
	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdt, 100, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)

	record, err := env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", false, 10)
	require.NoError(t, err)
	assert.False(t, record.Settled)
	assert.EqualValues(t, 10, record.SettledAmount)

	record, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 20)
	require.NoError(t, err)
	assert.True(t, record.Settled)
	assert.EqualValues(t, 20, record.SettledAmount)

	record, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", false, 30)
	require.NoError(t, err)
	assert.True(t, record.Settled)
	assert.EqualValues(t, 30, record.SettledAmount)
	assert.Equal(t, swap.StateCompleted, record.State)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 60, userRecord.TotalSettledValue)

	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdt, 100, common.FiatUsd, common.DirectionOnramp)
	assert.Equal(t, ErrPrecursorMissing, err)
	assert.EqualValues(t, 900, env.vaultBalance(t, common.StablecoinUsdt))
}

func TestComplete_SettledNeverReverts(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 100)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)
	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 100, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 100)
	require.NoError(t, err)

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", false, 0)
	require.NoError(t, err)

	record, err := env.ledger.GetSwap(env.ctx, owner, "swap-1")
	require.NoError(t, err)
	assert.True(t, record.Settled)
	assert.EqualValues(t, 0, record.SettledAmount)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 100, userRecord.TotalSettledValue)
}

func TestComplete_Overflow(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	env.fundVault(t, common.StablecoinUsdc, 100)

	userRecord, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)
	_, err = env.ledger.Initiate(env.ctx, env.admin, owner, "swap-1", common.StablecoinUsdc, 100, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)

	userRecord, err = env.data.GetUserByAddress(env.ctx, userRecord.Address)
	require.NoError(t, err)
	userRecord.TotalSettledValue = common.MaxAmount - 5
	require.NoError(t, env.data.UpdateUser(env.ctx, userRecord))

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 6)
	assert.Equal(t, ErrOverflow, err)

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, common.MaxAmount+1)
	assert.Equal(t, ErrInvalidAmount, err)

	record, err := env.ledger.GetSwap(env.ctx, owner, "swap-1")
	require.NoError(t, err)
	assert.Equal(t, swap.StateInitiated, record.State)

	_, err = env.ledger.Complete(env.ctx, env.admin, owner, "swap-1", true, 5)
	require.NoError(t, err)

	userRecord, err = env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, common.MaxAmount, userRecord.TotalSettledValue)
}

func TestSwapsAreScopedToOwner(t *testing.T) {
	env := setup(t)
	alice := testutil.NewRandomAccount(t)
	bob := testutil.NewRandomAccount(t)

	for _, owner := range []*common.Account{alice, bob} {
		_, err := env.ledger.RegisterUser(env.ctx, owner)
		require.NoError(t, err)
		_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "shared-id")
		require.NoError(t, err)
	}

	aliceSwap, err := env.ledger.GetSwap(env.ctx, alice, "shared-id")
	require.NoError(t, err)
	bobSwap, err := env.ledger.GetSwap(env.ctx, bob, "shared-id")
	require.NoError(t, err)
	assert.NotEqual(t, aliceSwap.Address, bobSwap.Address)

	env.fundVault(t, common.StablecoinUsdc, 10)
	_, err = env.ledger.Initiate(env.ctx, env.admin, alice, "shared-id", common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
	require.NoError(t, err)

	bobSwap, err = env.ledger.GetSwap(env.ctx, bob, "shared-id")
	require.NoError(t, err)
	assert.Equal(t, swap.StateCreated, bobSwap.State)
}

func TestFullLifecycle_ConcurrentUsers(t *testing.T) {
	env := setup(t)

	const users = 16
	const swapsPerUser = 4

	env.fundVault(t, common.StablecoinUsdc, users*swapsPerUser*10)

	owners := make([]*common.Account, users)
	for i := range owners {
		owners[i] = testutil.NewRandomAccount(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for _, owner := range owners {
		wg.Add(1)
		go func(owner *common.Account) {
			defer wg.Done()

			errs <- func() error {
				if _, err := env.ledger.RegisterUser(env.ctx, owner); err != nil {
					return err
				}

				for i := 0; i < swapsPerUser; i++ {
					swapId := fmt.Sprintf("swap-%d", i)

					var err error
					if i == 0 {
						_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, swapId)
					} else {
						_, err = env.ledger.OpenSwap(env.ctx, env.admin, owner, swapId)
					}
					if err != nil {
						return err
					}

					_, err = env.ledger.Initiate(env.ctx, env.admin, owner, swapId, common.StablecoinUsdc, 10, common.FiatUsd, common.DirectionOnramp)
					if err != nil {
						return err
					}

					_, err = env.ledger.Complete(env.ctx, env.admin, owner, swapId, true, 9)
					if err != nil {
						return err
					}
				}
				return nil
			}()
		}(owner)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 0, env.vaultBalance(t, common.StablecoinUsdc))
	for _, owner := range owners {
		userRecord, err := env.ledger.GetUser(env.ctx, owner)
		require.NoError(t, err)
		assert.EqualValues(t, swapsPerUser, userRecord.SwapCount)
		assert.EqualValues(t, swapsPerUser*9, userRecord.TotalSettledValue)
		assert.EqualValues(t, swapsPerUser*10, env.userBalance(t, owner, common.StablecoinUsdc))
	}
}

func TestConcurrentOpenFirstSwap_SingleWinner(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)

	const attempts = 10

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, fmt.Sprintf("swap-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, ErrNotFirstSwap, err)
		}
	}
	assert.Equal(t, 1, successes)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, userRecord.SwapCount)
}

func TestDistributedLocks(t *testing.T) {
	manager := &testLockManager{}
	env := setup(t, WithDistributedLocks(manager), WithLockStripes(4))
	owner := testutil.NewRandomAccount(t)

	_, err := env.ledger.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	_, err = env.ledger.OpenFirstSwap(env.ctx, env.admin, owner, "swap-1")
	require.NoError(t, err)

	userAddress, err := common.GetUserRecordAddress(common.ProgramAccount, owner)
	require.NoError(t, err)

	created, acquired, released := manager.stats()
	require.Len(t, created, 2)
	for _, name := range created {
		assert.Equal(t, "/user/"+userAddress.Account.PublicKey().ToBase58(), name)
	}
	assert.Equal(t, 2, acquired)
	assert.Equal(t, 2, released)

	manager.setFailCreate(true)
	_, err = env.ledger.OpenSwap(env.ctx, env.admin, owner, "swap-2")
	assert.Error(t, err)

	userRecord, err := env.ledger.GetUser(env.ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1, userRecord.SwapCount)
}

type testLockManager struct {
	mu         sync.Mutex
	created    []string
	acquired   int
	released   int
	failCreate bool
}

func (m *testLockManager) stats() ([]string, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...), m.acquired, m.released
}

func (m *testLockManager) setFailCreate(value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = value
}

func (m *testLockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate {
		return nil, errors.New("lock service unavailable")
	}

	m.created = append(m.created, name)
	return &testLock{manager: m}, nil
}

type testLock struct {
	manager *testLockManager
	held    bool
}

func (l *testLock) Acquire(_ context.Context) (<-chan struct{}, error) {
	l.manager.mu.Lock()
	defer l.manager.mu.Unlock()

	l.manager.acquired++
	l.held = true
	return make(chan struct{}), nil
}

func (l *testLock) Unlock(_ context.Context) error {
	l.manager.mu.Lock()
	defer l.manager.mu.Unlock()

	if l.held {
		l.manager.released++
		l.held = false
	}
	return nil
}

func (l *testLock) IsLocked() bool {
	return l.held
}

func TestSerializationFailuresAreRetried(t *testing.T) {
	env := setup(t)
	owner := testutil.NewRandomAccount(t)

	provider := &conflictingProvider{Provider: env.data, conflicts: 2}
	l := New(provider, env.custody, auth.NewStaticAdminPolicy(env.admin), WithClock(func() time.Time { return env.now }), WithMaxTxAttempts(3))

	_, err := l.RegisterUser(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.attempts)

	provider.conflicts = 3
	provider.attempts = 0

	_, err = l.OpenFirstSwap(env.ctx, env.admin, owner, "swap1")
	assert.True(t, isSerializationFailure(err))
	assert.Equal(t, 3, provider.attempts)

	_, err = l.GetSwap(env.ctx, owner, "swap1")
	assert.Equal(t, ErrNotFound, err)

	// Domain errors are never retried
	provider.conflicts = 0
	provider.attempts = 0

	_, err = l.RegisterUser(env.ctx, owner)
	assert.Equal(t, ErrAlreadyExists, err)
	assert.Equal(t, 1, provider.attempts)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}

// conflictingProvider fails the first conflicts transactions as if a
// concurrent writer had won
type conflictingProvider struct {
	mizumi_data.Provider

	conflicts int
	attempts  int
}

func (p *conflictingProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	p.attempts++
	if p.conflicts > 0 {
		p.conflicts--
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	}
	return p.Provider.ExecuteInTx(ctx, isolation, fn)
}
