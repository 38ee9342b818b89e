package custody

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	mizumi_data "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
	"github.com/mizumi-finance/mizumi-server/pkg/testutil"
)

type testEnv struct {
	ctx     context.Context
	data    mizumi_data.Provider
	custody *Custody
}

func setup(t *testing.T) (env testEnv) {
	env.ctx = context.Background()
	env.data = mizumi_data.NewTestDatabaseProvider()

	var err error
	env.custody, err = New(env.data, common.ProgramAccount)
	require.NoError(t, err)

	require.NoError(t, env.custody.InitializeVaults(env.ctx))
	return env
}

func TestRoutes_CoverEveryStablecoinAndDirection(t *testing.T) {
	assert.Len(t, routes, len(common.SupportedStablecoins)*len(common.SupportedDirections))

	for _, stablecoin := range common.SupportedStablecoins {
		descriptor, ok := routes[route{stablecoin, common.DirectionOnramp}]
		require.True(t, ok)
		assert.Equal(t, endpointVault, descriptor.from)
		assert.Equal(t, endpointUserHolder, descriptor.to)
		assert.Equal(t, endpointVault, descriptor.authorizer)

		descriptor, ok = routes[route{stablecoin, common.DirectionOfframp}]
		require.True(t, ok)
		assert.Equal(t, endpointUserHolder, descriptor.from)
		assert.Equal(t, endpointVault, descriptor.to)
		assert.Equal(t, endpointUser, descriptor.authorizer)
	}
}

func TestVaults_SelfAuthorizing(t *testing.T) {
	env := setup(t)

	usdcVault, err := env.custody.GetVault(common.StablecoinUsdc)
	require.NoError(t, err)
	usdtVault, err := env.custody.GetVault(common.StablecoinUsdt)
	require.NoError(t, err)

	assert.False(t, usdcVault.Address().Equals(usdtVault.Address()))
	assert.True(t, usdcVault.Mint().Equals(common.UsdcMintAccount))
	assert.True(t, usdtVault.Mint().Equals(common.UsdtMintAccount))

	for _, vault := range []*Vault{usdcVault, usdtVault} {
		assert.False(t, vault.Address().IsOnCurve())
		assert.Equal(t, vault.Address().PublicKey().ToBase58(), vault.signer.authorize())

		record, err := env.data.GetTokenAccount(env.ctx, vault.Address().PublicKey().ToBase58())
		require.NoError(t, err)
		assert.Equal(t, vault.signer.authorize(), record.Owner)
		assert.Equal(t, vault.Mint().PublicKey().ToBase58(), record.Mint)
		assert.EqualValues(t, 0, record.Balance)
	}

	_, err = env.custody.GetVault(common.StablecoinUnknown)
	assert.Equal(t, ErrVaultNotFound, err)
}

func TestInitializeVaults_Idempotent(t *testing.T) {
	env := setup(t)

	vault, err := env.custody.GetVault(common.StablecoinUsdc)
	require.NoError(t, err)
	require.NoError(t, env.data.DepositTokens(env.ctx, vault.Address().PublicKey().ToBase58(), 500))

	require.NoError(t, env.custody.InitializeVaults(env.ctx))

	record, err := env.data.GetTokenAccount(env.ctx, vault.Address().PublicKey().ToBase58())
	require.NoError(t, err)
	assert.EqualValues(t, 500, record.Balance)
}

func TestMoveFunds_Matrix(t *testing.T) {
	for _, stablecoin := range common.SupportedStablecoins {
		env := setup(t)

		user := testutil.NewRandomAccount(t)
		require.NoError(t, env.custody.InitializeUserHolders(env.ctx, user))
		require.NoError(t, env.custody.InitializeUserHolders(env.ctx, user))

		vault, err := env.custody.GetVault(stablecoin)
		require.NoError(t, err)
		holder, err := env.custody.GetUserHolder(user, stablecoin)
		require.NoError(t, err)

		require.NoError(t, env.data.DepositTokens(env.ctx, holder.PublicKey().ToBase58(), 100))

		require.NoError(t, env.custody.MoveFunds(env.ctx, stablecoin, common.DirectionOfframp, 70, user))
		assertBalance(t, env, vault.Address(), 70)
		assertBalance(t, env, holder, 30)

		require.NoError(t, env.custody.MoveFunds(env.ctx, stablecoin, common.DirectionOnramp, 50, user))
		assertBalance(t, env, vault.Address(), 20)
		assertBalance(t, env, holder, 80)

		for _, other := range common.SupportedStablecoins {
			if other == stablecoin {
				continue
			}

			otherVault, err := env.custody.GetVault(other)
			require.NoError(t, err)
			otherHolder, err := env.custody.GetUserHolder(user, other)
			require.NoError(t, err)

			assertBalance(t, env, otherVault.Address(), 0)
			assertBalance(t, env, otherHolder, 0)
		}
	}
}

func TestMoveFunds_TransferFailures(t *testing.T) {
	env := setup(t)

	user := testutil.NewRandomAccount(t)

	err := env.custody.MoveFunds(env.ctx, common.StablecoinUsdc, common.DirectionOfframp, 1, user)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.True(t, errors.Is(err, token.ErrAccountNotFound))

	require.NoError(t, env.custody.InitializeUserHolders(env.ctx, user))

	err = env.custody.MoveFunds(env.ctx, common.StablecoinUsdc, common.DirectionOnramp, 1, user)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.True(t, errors.Is(err, token.ErrInsufficientBalance))

	err = env.custody.MoveFunds(env.ctx, common.StablecoinUsdt, common.DirectionOfframp, 1, user)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.True(t, errors.Is(err, token.ErrInsufficientBalance))

	var transferErr *TransferError
	require.True(t, errors.As(err, &transferErr))
	assert.Equal(t, common.StablecoinUsdt, transferErr.Stablecoin)
	assert.Equal(t, common.DirectionOfframp, transferErr.Direction)
	assert.EqualValues(t, 1, transferErr.Amount)
}

func TestMoveFunds_UnsupportedRoute(t *testing.T) {
	env := setup(t)

	user := testutil.NewRandomAccount(t)

	assert.Equal(t, ErrUnsupportedRoute, env.custody.MoveFunds(env.ctx, common.StablecoinUnknown, common.DirectionOnramp, 1, user))
	assert.Equal(t, ErrUnsupportedRoute, env.custody.MoveFunds(env.ctx, common.StablecoinUsdc, common.DirectionUnknown, 1, user))
}

func assertBalance(t *testing.T, env testEnv, account *common.Account, expected uint64) {
	record, err := env.data.GetTokenAccount(env.ctx, account.PublicKey().ToBase58())
	require.NoError(t, err)
	assert.Equal(t, expected, record.Balance)
}
