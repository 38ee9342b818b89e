package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
)

func RunTests(t *testing.T, s token.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s token.Store){
		testRoundTrip,
		testDeposit,
		testTransferHappyPath,
		testTransferFailures,
		testBalanceLimits,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s token.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetByAddress(ctx, "test_address")
		assert.Equal(t, token.ErrAccountNotFound, err)

		expected := &token.Record{
			Address: "test_address",
			Owner:   "test_owner",
			Mint:    "test_mint",
			Balance: 42,
		}
		require.NoError(t, s.Put(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, "test_address", actual.Address)
		assert.Equal(t, "test_owner", actual.Owner)
		assert.Equal(t, "test_mint", actual.Mint)
		assert.EqualValues(t, 42, actual.Balance)

		assert.Equal(t, token.ErrAccountExists, s.Put(ctx, &token.Record{
			Address: "test_address",
			Owner:   "other_owner",
			Mint:    "other_mint",
		}))
	})
}

func testDeposit(t *testing.T, s token.Store) {
	t.Run("testDeposit", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, token.ErrAccountNotFound, s.Deposit(ctx, "test_address", 10))

		putAccount(t, s, "test_address", "test_owner", "test_mint", 0)

		require.NoError(t, s.Deposit(ctx, "test_address", 10))
		require.NoError(t, s.Deposit(ctx, "test_address", 15))
		assertBalance(t, s, "test_address", 25)
	})
}

func testTransferHappyPath(t *testing.T, s token.Store) {
	t.Run("testTransferHappyPath", func(t *testing.T) {
		ctx := context.Background()

		putAccount(t, s, "source", "source_owner", "test_mint", 100)
		putAccount(t, s, "destination", "destination_owner", "test_mint", 5)

		require.NoError(t, s.Transfer(ctx, "source", "destination", "source_owner", 60))
		assertBalance(t, s, "source", 40)
		assertBalance(t, s, "destination", 65)

		require.NoError(t, s.Transfer(ctx, "destination", "source", "destination_owner", 65))
		assertBalance(t, s, "source", 105)
		assertBalance(t, s, "destination", 0)

		require.NoError(t, s.Transfer(ctx, "source", "source", "source_owner", 105))
		assertBalance(t, s, "source", 105)

		require.NoError(t, s.Transfer(ctx, "destination", "source", "destination_owner", 0))
		assertBalance(t, s, "source", 105)
		assertBalance(t, s, "destination", 0)
	})
}

func testTransferFailures(t *testing.T, s token.Store) {
	t.Run("testTransferFailures", func(t *testing.T) {
		ctx := context.Background()

		putAccount(t, s, "source", "source_owner", "test_mint", 100)
		putAccount(t, s, "destination", "destination_owner", "test_mint", 0)
		putAccount(t, s, "other_mint_destination", "destination_owner", "other_mint", 0)

		assert.Equal(t, token.ErrAccountNotFound, s.Transfer(ctx, "unknown", "destination", "source_owner", 1))
		assert.Equal(t, token.ErrAccountNotFound, s.Transfer(ctx, "source", "unknown", "source_owner", 1))
		assert.Equal(t, token.ErrOwnerMismatch, s.Transfer(ctx, "source", "destination", "destination_owner", 1))
		assert.Equal(t, token.ErrMintMismatch, s.Transfer(ctx, "source", "other_mint_destination", "source_owner", 1))
		assert.Equal(t, token.ErrInsufficientBalance, s.Transfer(ctx, "source", "destination", "source_owner", 101))

		assertBalance(t, s, "source", 100)
		assertBalance(t, s, "destination", 0)
		assertBalance(t, s, "other_mint_destination", 0)
	})
}

func testBalanceLimits(t *testing.T, s token.Store) {
	t.Run("testBalanceLimits", func(t *testing.T) {
		ctx := context.Background()

		assert.Error(t, s.Put(ctx, &token.Record{
			Address: "test_address",
			Owner:   "test_owner",
			Mint:    "test_mint",
			Balance: common.MaxAmount + 1,
		}))

		putAccount(t, s, "source", "source_owner", "test_mint", 10)
		putAccount(t, s, "destination", "destination_owner", "test_mint", common.MaxAmount-5)

		assert.Equal(t, token.ErrBalanceOverflow, s.Deposit(ctx, "destination", 6))
		assert.Equal(t, token.ErrBalanceOverflow, s.Deposit(ctx, "source", common.MaxAmount+1))
		assert.Equal(t, token.ErrBalanceOverflow, s.Transfer(ctx, "source", "destination", "source_owner", 6))

		require.NoError(t, s.Transfer(ctx, "source", "destination", "source_owner", 5))
		assertBalance(t, s, "source", 5)
		assertBalance(t, s, "destination", common.MaxAmount)
	})
}

func putAccount(t *testing.T, s token.Store, address, owner, mint string, balance uint64) {
	require.NoError(t, s.Put(context.Background(), &token.Record{
		Address: address,
		Owner:   owner,
		Mint:    mint,
		Balance: balance,
	}))
}

func assertBalance(t *testing.T, s token.Store, address string, expected uint64) {
	actual, err := s.GetByAddress(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, expected, actual.Balance)
}
