//go:build integration

package etcdtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"
)

func TestStartEtcd(t *testing.T) {
	ctx := context.Background()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := StartEtcd(pool)
	require.NoError(t, err)
	defer teardown()

	resp, err := client.Get(ctx, "/user/", v3.WithPrefix())
	require.NoError(t, err)
	assert.Empty(t, resp.Kvs)

	for i := 0; i < 5; i++ {
		_, err := client.Put(ctx, fmt.Sprintf("/user/%d", i), fmt.Sprintf("replica-%d", i))
		require.NoError(t, err)
	}

	resp, err = client.Get(ctx, "/user/", v3.WithPrefix(), v3.WithSort(v3.SortByKey, v3.SortAscend))
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 5)
	for i, kv := range resp.Kvs {
		assert.Equal(t, fmt.Sprintf("/user/%d", i), string(kv.Key))
		assert.Equal(t, fmt.Sprintf("replica-%d", i), string(kv.Value))
	}
}
