package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
)

func RunTests(t *testing.T, s user.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s user.Store){
		testRoundTrip,
		testDuplicatePut,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testAmountLimits,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s user.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetByAddress(ctx, "test_address")
		assert.Equal(t, user.ErrNotFound, err)

		_, err = s.GetByOwner(ctx, "test_owner")
		assert.Equal(t, user.ErrNotFound, err)

		expected := &user.Record{
			Address:   "test_address",
			Bump:      254,
			Owner:     "test_owner",
			CreatedAt: time.Now(),
		}
		cloned := expected.Clone()

		require.NoError(t, s.Put(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
		assert.EqualValues(t, 1, actual.Version)

		actual, err = s.GetByOwner(ctx, "test_owner")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
	})
}

func testDuplicatePut(t *testing.T, s user.Store) {
	t.Run("testDuplicatePut", func(t *testing.T) {
		ctx := context.Background()

		record := &user.Record{
			Address: "test_address",
			Owner:   "test_owner",
		}
		require.NoError(t, s.Put(ctx, record))

		record.TotalSettledValue = 100
		require.NoError(t, s.Update(ctx, record))

		duplicate := &user.Record{
			Address: "test_address",
			Owner:   "test_owner",
		}
		assert.Equal(t, user.ErrExists, s.Put(ctx, duplicate))

		actual, err := s.GetByOwner(ctx, "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 100, actual.TotalSettledValue)
	})
}

func testUpdateHappyPath(t *testing.T, s user.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &user.Record{
			Address: "test_address",
			Owner:   "test_owner",
		}
		require.NoError(t, s.Put(ctx, expected))

		for i := 1; i <= 3; i++ {
			expected.SwapCount++
			expected.TotalSettledValue += 50

			require.NoError(t, s.Update(ctx, expected))
			assert.EqualValues(t, i+1, expected.Version)
		}

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.EqualValues(t, 3, actual.SwapCount)
		assert.EqualValues(t, 150, actual.TotalSettledValue)
		assert.EqualValues(t, 4, actual.Version)
	})
}

func testUpdateStaleRecord(t *testing.T, s user.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &user.Record{
			Address: "test_address",
			Owner:   "test_owner",
		}
		require.NoError(t, s.Put(ctx, expected))

		stale := expected.Clone()

		expected.SwapCount = 1
		require.NoError(t, s.Update(ctx, expected))

		stale.SwapCount = 5
		assert.Equal(t, user.ErrStaleVersion, s.Update(ctx, &stale))

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assert.EqualValues(t, 1, actual.SwapCount)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func testAmountLimits(t *testing.T, s user.Store) {
	t.Run("testAmountLimits", func(t *testing.T) {
		ctx := context.Background()

		assert.Error(t, s.Put(ctx, &user.Record{
			Address:           "test_address",
			Owner:             "test_owner",
			TotalSettledValue: common.MaxAmount + 1,
		}))

		expected := &user.Record{
			Address:           "test_address",
			Owner:             "test_owner",
			TotalSettledValue: common.MaxAmount,
		}
		require.NoError(t, s.Put(ctx, expected))

		expected.TotalSettledValue = common.MaxAmount + 1
		assert.Error(t, s.Update(ctx, expected))

		expected.TotalSettledValue = common.MaxAmount
		expected.SwapCount = common.MaxAmount + 1
		assert.Error(t, s.Update(ctx, expected))

		actual, err := s.GetByAddress(ctx, "test_address")
		require.NoError(t, err)
		assert.Equal(t, common.MaxAmount, actual.TotalSettledValue)
		assert.EqualValues(t, 0, actual.SwapCount)
		assert.EqualValues(t, 1, actual.Version)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *user.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Bump, obj2.Bump)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.SwapCount, obj2.SwapCount)
	assert.Equal(t, obj1.TotalSettledValue, obj2.TotalSettledValue)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
}
