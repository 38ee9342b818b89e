package custody

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	mizumi_data "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token"
)

const (
	metricsStructName = "custody.custody"

	transferEventName  = "CustodyTransfer"
	transferMetricName = "Custody/transfers"
)

// Custody moves stablecoins between the vaults and user token holders
type Custody struct {
	log  *logrus.Entry
	data mizumi_data.Provider

	vaults map[common.Stablecoin]*Vault
}

func New(data mizumi_data.Provider, program *common.Account) (*Custody, error) {
	vaults := make(map[common.Stablecoin]*Vault)
	for _, stablecoin := range common.SupportedStablecoins {
		vault, err := newVault(program, stablecoin)
		if err != nil {
			return nil, err
		}
		vaults[stablecoin] = vault
	}

	return &Custody{
		log:    logrus.StandardLogger().WithField("type", "custody/custody"),
		data:   data,
		vaults: vaults,
	}, nil
}

// GetVault returns the vault for the stablecoin
func (c *Custody) GetVault(stablecoin common.Stablecoin) (*Vault, error) {
	vault, ok := c.vaults[stablecoin]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return vault, nil
}

// GetUserHolder returns the user's token holder for the stablecoin
func (c *Custody) GetUserHolder(user *common.Account, stablecoin common.Stablecoin) (*common.Account, error) {
	vault, err := c.GetVault(stablecoin)
	if err != nil {
		return nil, err
	}
	return user.ToAssociatedTokenAccount(vault.Mint())
}

// InitializeVaults creates the token account of every vault. Vaults that
// already exist are left untouched.
func (c *Custody) InitializeVaults(ctx context.Context) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "InitializeVaults").End()

	for _, stablecoin := range common.SupportedStablecoins {
		vault := c.vaults[stablecoin]

		log := c.log.WithFields(logrus.Fields{
			"method":     "InitializeVaults",
			"stablecoin": stablecoin.String(),
			"vault":      vault.Address().PublicKey().ToBase58(),
		})

		err := c.data.CreateTokenAccount(ctx, &token.Record{
			Address: vault.Address().PublicKey().ToBase58(),
			Owner:   vault.signer.authorize(),
			Mint:    vault.Mint().PublicKey().ToBase58(),
		})
		switch err {
		case nil:
			log.Info("vault initialized")
		case token.ErrAccountExists:
			log.Debug("vault already initialized")
		default:
			log.WithError(err).Warn("failure initializing vault")
			return errors.Wrapf(err, "error initializing %s vault", stablecoin)
		}
	}
	return nil
}

// InitializeUserHolders creates the user's token holder for every supported
// stablecoin. Holders that already exist are left untouched.
func (c *Custody) InitializeUserHolders(ctx context.Context, user *common.Account) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "InitializeUserHolders").End()

	for _, stablecoin := range common.SupportedStablecoins {
		holder, err := c.GetUserHolder(user, stablecoin)
		if err != nil {
			return err
		}

		err = c.data.CreateTokenAccount(ctx, &token.Record{
			Address: holder.PublicKey().ToBase58(),
			Owner:   user.PublicKey().ToBase58(),
			Mint:    c.vaults[stablecoin].Mint().PublicKey().ToBase58(),
		})
		if err != nil && err != token.ErrAccountExists {
			return errors.Wrapf(err, "error initializing %s holder", stablecoin)
		}
	}
	return nil
}

// MoveFunds moves amount between the stablecoin's vault and the user's holder
// in the given direction. Failures reported by the transfer primitive match
// ErrTransferFailed.
func (c *Custody) MoveFunds(ctx context.Context, stablecoin common.Stablecoin, direction common.Direction, amount uint64, user *common.Account) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "MoveFunds")
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method":     "MoveFunds",
		"stablecoin": stablecoin.String(),
		"direction":  direction.String(),
		"amount":     amount,
		"user":       user.PublicKey().ToBase58(),
	})

	descriptor, ok := routes[route{stablecoin, direction}]
	if !ok {
		return ErrUnsupportedRoute
	}

	vault, err := c.GetVault(stablecoin)
	if err != nil {
		return err
	}

	holder, err := c.GetUserHolder(user, stablecoin)
	if err != nil {
		return err
	}

	resolve := func(e endpoint) string {
		switch e {
		case endpointVault:
			return vault.Address().PublicKey().ToBase58()
		case endpointUserHolder:
			return holder.PublicKey().ToBase58()
		case endpointUser:
			return user.PublicKey().ToBase58()
		}
		return ""
	}

	from := resolve(descriptor.from)
	to := resolve(descriptor.to)

	authority := resolve(descriptor.authorizer)
	if descriptor.authorizer == endpointVault {
		authority = vault.signer.authorize()
	}

	log = log.WithFields(logrus.Fields{
		"from":      from,
		"to":        to,
		"authority": authority,
	})

	err = c.data.GetTokenTransferrer().Transfer(ctx, from, to, authority, amount)
	if err != nil {
		log.WithError(err).Warn("custody transfer rejected")

		transferErr := &TransferError{
			Stablecoin: stablecoin,
			Direction:  direction,
			Amount:     amount,
			cause:      err,
		}
		tracer.OnError(transferErr)
		return transferErr
	}

	metrics.RecordCount(ctx, transferMetricName, 1)
	metrics.RecordEvent(ctx, transferEventName, map[string]interface{}{
		"stablecoin": stablecoin.String(),
		"direction":  direction.String(),
		"amount":     amount,
		"from":       from,
		"to":         to,
	})

	log.Debug("custody transfer completed")
	return nil
}
