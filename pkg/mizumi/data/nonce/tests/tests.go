package tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
)

func RunTests(t *testing.T, s nonce.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s nonce.Store){
		testPut,
		testValidation,
		testDeleteBefore,
	} {
		tf(t, s)
		teardown()
	}
}

func testPut(t *testing.T, s nonce.Store) {
	t.Run("testPut", func(t *testing.T) {
		ctx := context.Background()

		record := &nonce.Record{
			Signer: "test_signer",
			Value:  "test_nonce",
		}
		require.NoError(t, s.Put(ctx, record))
		assert.EqualValues(t, 1, record.Id)
		assert.False(t, record.CreatedAt.IsZero())

		assert.Equal(t, nonce.ErrExists, s.Put(ctx, &nonce.Record{
			Signer: "test_signer",
			Value:  "test_nonce",
		}))

		require.NoError(t, s.Put(ctx, &nonce.Record{
			Signer: "other_signer",
			Value:  "test_nonce",
		}))
		require.NoError(t, s.Put(ctx, &nonce.Record{
			Signer: "test_signer",
			Value:  "other_nonce",
		}))
	})
}

func testValidation(t *testing.T, s nonce.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, invalid := range []*nonce.Record{
			{Value: "test_nonce"},
			{Signer: "test_signer"},
			{Signer: "test_signer", Value: strings.Repeat("n", nonce.MaxValueLength+1)},
		} {
			assert.Error(t, s.Put(ctx, invalid))
		}

		require.NoError(t, s.Put(ctx, &nonce.Record{
			Signer: "test_signer",
			Value:  strings.Repeat("n", nonce.MaxValueLength),
		}))
	})
}

func testDeleteBefore(t *testing.T, s nonce.Store) {
	t.Run("testDeleteBefore", func(t *testing.T) {
		ctx := context.Background()

		now := time.Now()

		for i, createdAt := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now} {
			require.NoError(t, s.Put(ctx, &nonce.Record{
				Signer:    "test_signer",
				Value:     []string{"old", "recent", "current"}[i],
				CreatedAt: createdAt,
			}))
		}

		deleted, err := s.DeleteBefore(ctx, now.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		require.NoError(t, s.Put(ctx, &nonce.Record{Signer: "test_signer", Value: "old"}))
		assert.Equal(t, nonce.ErrExists, s.Put(ctx, &nonce.Record{Signer: "test_signer", Value: "recent"}))

		deleted, err = s.DeleteBefore(ctx, now.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 0, deleted)
	})
}
