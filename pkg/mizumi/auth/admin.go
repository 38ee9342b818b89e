package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/config"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	mizumi_config "github.com/mizumi-finance/mizumi-server/pkg/mizumi/config"
)

var (
	ErrUnauthorized = errors.New("caller is not an authorized admin")
)

// AdminPolicy decides whether a caller may perform privileged ledger operations
type AdminPolicy interface {
	IsAuthorized(ctx context.Context, caller *common.Account) bool
}

// RequireAdmin returns ErrUnauthorized unless the policy authorizes the caller
func RequireAdmin(ctx context.Context, policy AdminPolicy, caller *common.Account) error {
	if caller == nil || policy == nil {
		return ErrUnauthorized
	}

	if !policy.IsAuthorized(ctx, caller) {
		return ErrUnauthorized
	}
	return nil
}

type staticAdminPolicy struct {
	admins []*common.Account
}

// NewStaticAdminPolicy returns a policy authorizing a fixed set of admins
func NewStaticAdminPolicy(admins ...*common.Account) AdminPolicy {
	return &staticAdminPolicy{
		admins: admins,
	}
}

// NewDefaultAdminPolicy returns a policy authorizing only the compiled-in admin key
func NewDefaultAdminPolicy() AdminPolicy {
	admin, err := common.NewAccountFromPublicKeyBytes(mizumi_config.AdminPublicKeyBytes)
	if err != nil {
		panic(err)
	}
	return NewStaticAdminPolicy(admin)
}

func (p *staticAdminPolicy) IsAuthorized(_ context.Context, caller *common.Account) bool {
	return isAdmin(caller, p.admins)
}

type configAdminPolicy struct {
	log  *logrus.Entry
	keys config.String
}

// NewConfigAdminPolicy returns a policy that reads a comma separated list of
// base58 admin keys on every check, so admins can be rotated without a restart.
func NewConfigAdminPolicy(keys config.String) AdminPolicy {
	return &configAdminPolicy{
		log:  logrus.StandardLogger().WithField("type", "auth/config_admin_policy"),
		keys: keys,
	}
}

func (p *configAdminPolicy) IsAuthorized(ctx context.Context, caller *common.Account) bool {
	admins, err := ParseAdminKeys(p.keys.Get(ctx))
	if err != nil {
		p.log.WithError(err).Warn("invalid admin key configuration")
		return false
	}
	return isAdmin(caller, admins)
}

// ParseAdminKeys parses a comma separated list of base58 public keys
func ParseAdminKeys(value string) ([]*common.Account, error) {
	var admins []*common.Account
	for _, key := range strings.Split(value, ",") {
		key = strings.TrimSpace(key)
		if len(key) == 0 {
			continue
		}

		admin, err := common.NewAccountFromPublicKeyString(key)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid admin key %s", key)
		}
		admins = append(admins, admin)
	}
	return admins, nil
}

func isAdmin(caller *common.Account, admins []*common.Account) bool {
	for _, admin := range admins {
		if admin.Equals(caller) {
			return true
		}
	}
	return false
}
