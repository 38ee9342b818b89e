package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizumi-finance/mizumi-server/pkg/config/memory"
	"github.com/mizumi-finance/mizumi-server/pkg/config/wrapper"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	mizumi_config "github.com/mizumi-finance/mizumi-server/pkg/mizumi/config"
	"github.com/mizumi-finance/mizumi-server/pkg/testutil"
)

func TestStaticAdminPolicy(t *testing.T) {
	ctx := context.Background()

	admin := testutil.NewRandomAccount(t)
	other := testutil.NewRandomAccount(t)

	policy := NewStaticAdminPolicy(admin)
	assert.NoError(t, RequireAdmin(ctx, policy, admin))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, other))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, nil))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, nil, admin))

	publicOnly, err := common.NewAccountFromPublicKey(admin.PublicKey())
	require.NoError(t, err)
	assert.NoError(t, RequireAdmin(ctx, policy, publicOnly))
}

func TestDefaultAdminPolicy(t *testing.T) {
	ctx := context.Background()

	admin, err := common.NewAccountFromPublicKeyString(mizumi_config.AdminPublicKeyString)
	require.NoError(t, err)

	policy := NewDefaultAdminPolicy()
	assert.NoError(t, RequireAdmin(ctx, policy, admin))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, testutil.NewRandomAccount(t)))
}

func TestConfigAdminPolicy_Rotation(t *testing.T) {
	ctx := context.Background()

	admin1 := testutil.NewRandomAccount(t)
	admin2 := testutil.NewRandomAccount(t)
	admin3 := testutil.NewRandomAccount(t)

	override := memory.NewConfig(admin1.PublicKey().ToBase58())
	policy := NewConfigAdminPolicy(wrapper.NewStringConfig(override, ""))

	assert.NoError(t, RequireAdmin(ctx, policy, admin1))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, admin2))

	override.SetValue(strings.Join([]string{
		admin2.PublicKey().ToBase58(),
		" " + admin3.PublicKey().ToBase58(),
	}, ","))
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, admin1))
	assert.NoError(t, RequireAdmin(ctx, policy, admin2))
	assert.NoError(t, RequireAdmin(ctx, policy, admin3))

	override.SetValue("not-a-key")
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, admin2))

	override.ClearValue()
	assert.Equal(t, ErrUnauthorized, RequireAdmin(ctx, policy, admin2))
}

func TestParseAdminKeys(t *testing.T) {
	admin1 := testutil.NewRandomAccount(t)
	admin2 := testutil.NewRandomAccount(t)

	admins, err := ParseAdminKeys(admin1.PublicKey().ToBase58() + ",," + admin2.PublicKey().ToBase58() + ",")
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.True(t, admins[0].Equals(admin1))
	assert.True(t, admins[1].Equals(admin2))

	admins, err = ParseAdminKeys("")
	require.NoError(t, err)
	assert.Empty(t, admins)

	_, err = ParseAdminKeys("invalid")
	assert.Error(t, err)
}
