package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/pointer"
)

func RunTests(t *testing.T, s swap.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s swap.Store){
		testRoundTrip,
		testDuplicatePut,
		testLifecycleHappyPath,
		testUpdateStaleRecord,
		testGetAllByOwner,
		testAmountLimits,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s swap.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetByAddress(ctx, "test_address")
		assert.Equal(t, swap.ErrNotFound, err)

		_, err = s.GetByOwnerAndSwapId(ctx, "test_owner", "test_swap_id")
		assert.Equal(t, swap.ErrNotFound, err)

		count, err := s.CountByOwner(ctx, "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		expected := newCreatedRecord("test_address", "test_owner", "test_swap_id")
		cloned := expected.Clone()

		require.NoError(t, s.Put(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		actual, err = s.GetByOwnerAndSwapId(ctx, "test_owner", "test_swap_id")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		count, err = s.CountByOwner(ctx, "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func testDuplicatePut(t *testing.T, s swap.Store) {
	t.Run("testDuplicatePut", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, newCreatedRecord("test_address", "test_owner", "test_swap_id")))

		assert.Equal(t, swap.ErrExists, s.Put(ctx, newCreatedRecord("test_address", "test_owner", "test_swap_id")))
		assert.Equal(t, swap.ErrExists, s.Put(ctx, newCreatedRecord("test_address", "other_owner", "other_swap_id")))
		assert.Equal(t, swap.ErrExists, s.Put(ctx, newCreatedRecord("other_address", "test_owner", "test_swap_id")))

		require.NoError(t, s.Put(ctx, newCreatedRecord("other_address", "other_owner", "test_swap_id")))
	})
}

func testLifecycleHappyPath(t *testing.T, s swap.Store) {
	t.Run("testLifecycleHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := newCreatedRecord("test_address", "test_owner", "test_swap_id")
		require.NoError(t, s.Put(ctx, expected))

		expected.State = swap.StateInitiated
		expected.Stablecoin = common.StablecoinUsdt
		expected.Fiat = common.FiatGhs
		expected.Direction = common.DirectionOfframp
		expected.RequestedAmount = 12345
		expected.InitiatedAt = pointer.Time(time.Now())
		require.NoError(t, s.Update(ctx, expected))
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		expected.State = swap.StateCompleted
		expected.Settled = true
		expected.SettledAmount = 12000
		expected.SettledAt = pointer.Time(time.Now())
		require.NoError(t, s.Update(ctx, expected))
		assert.EqualValues(t, 3, expected.Version)

		actual, err = s.GetByOwnerAndSwapId(ctx, "test_owner", "test_swap_id")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.EqualValues(t, 3, actual.Version)
	})
}

func testUpdateStaleRecord(t *testing.T, s swap.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := newCreatedRecord("test_address", "test_owner", "test_swap_id")
		require.NoError(t, s.Put(ctx, expected))

		stale := expected.Clone()

		expected.State = swap.StateInitiated
		expected.Stablecoin = common.StablecoinUsdc
		expected.Fiat = common.FiatUsd
		expected.Direction = common.DirectionOnramp
		expected.RequestedAmount = 100
		expected.InitiatedAt = pointer.Time(time.Now())
		require.NoError(t, s.Update(ctx, expected))

		stale.State = swap.StateInitiated
		stale.Stablecoin = common.StablecoinUsdt
		stale.Fiat = common.FiatGhs
		stale.Direction = common.DirectionOfframp
		stale.RequestedAmount = 999
		stale.InitiatedAt = pointer.Time(time.Now())
		assert.Equal(t, swap.ErrStaleVersion, s.Update(ctx, &stale))

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testGetAllByOwner(t *testing.T, s swap.Store) {
	t.Run("testGetAllByOwner", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByOwner(ctx, "test_owner", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, swap.ErrNotFound, err)

		var expected []*swap.Record
		for i := 0; i < 5; i++ {
			record := newCreatedRecord(fmt.Sprintf("test_address_%d", i), "test_owner", fmt.Sprintf("test_swap_id_%d", i))
			require.NoError(t, s.Put(ctx, record))
			expected = append(expected, record)
		}
		require.NoError(t, s.Put(ctx, newCreatedRecord("other_address", "other_owner", "test_swap_id_0")))

		count, err := s.CountByOwner(ctx, "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 5, count)

		actual, err := s.GetAllByOwner(ctx, "test_owner", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[i], record)
		}

		actual, err = s.GetAllByOwner(ctx, "test_owner", query.EmptyCursor, 2, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[4], actual[0])
		assertEquivalentRecords(t, expected[3], actual[1])

		actual, err = s.GetAllByOwner(ctx, "test_owner", query.ToCursor(expected[1].Id), 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assertEquivalentRecords(t, expected[2], actual[0])

		_, err = s.GetAllByOwner(ctx, "test_owner", query.ToCursor(expected[4].Id), 10, query.Ascending)
		assert.Equal(t, swap.ErrNotFound, err)
	})
}

func testAmountLimits(t *testing.T, s swap.Store) {
	t.Run("testAmountLimits", func(t *testing.T) {
		ctx := context.Background()

		expected := newCreatedRecord("test_address", "test_owner", "test_swap_id")
		require.NoError(t, s.Put(ctx, expected))

		expected.State = swap.StateInitiated
		expected.Stablecoin = common.StablecoinUsdc
		expected.Fiat = common.FiatUsd
		expected.Direction = common.DirectionOnramp
		expected.RequestedAmount = common.MaxAmount + 1
		expected.InitiatedAt = pointer.Time(time.Now())
		assert.Error(t, s.Update(ctx, expected))
		assert.EqualValues(t, 1, expected.Version)

		expected.RequestedAmount = common.MaxAmount
		require.NoError(t, s.Update(ctx, expected))

		expected.State = swap.StateCompleted
		expected.Settled = true
		expected.SettledAmount = common.MaxAmount + 1
		expected.SettledAt = pointer.Time(time.Now())
		assert.Error(t, s.Update(ctx, expected))

		expected.SettledAmount = common.MaxAmount
		require.NoError(t, s.Update(ctx, expected))

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.Equal(t, common.MaxAmount, actual.RequestedAmount)
		assert.Equal(t, common.MaxAmount, actual.SettledAmount)
	})
}

func newCreatedRecord(address, owner, swapId string) *swap.Record {
	return &swap.Record{
		Address:   address,
		Bump:      255,
		Owner:     owner,
		SwapId:    swapId,
		State:     swap.StateCreated,
		CreatedAt: time.Now(),
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *swap.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Bump, obj2.Bump)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.SwapId, obj2.SwapId)
	assert.Equal(t, obj1.State, obj2.State)
	assert.Equal(t, obj1.Stablecoin, obj2.Stablecoin)
	assert.Equal(t, obj1.Fiat, obj2.Fiat)
	assert.Equal(t, obj1.Direction, obj2.Direction)
	assert.Equal(t, obj1.RequestedAmount, obj2.RequestedAmount)
	assert.Equal(t, obj1.Settled, obj2.Settled)
	assert.Equal(t, obj1.SettledAmount, obj2.SettledAmount)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())

	assertEquivalentTimes(t, obj1.InitiatedAt, obj2.InitiatedAt)
	assertEquivalentTimes(t, obj1.SettledAt, obj2.SettledAt)
}

func assertEquivalentTimes(t *testing.T, expected, actual *time.Time) {
	if expected == nil {
		assert.Nil(t, actual)
		return
	}

	require.NotNil(t, actual)
	assert.Equal(t, expected.Unix(), actual.Unix())
}
