package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	pg "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/custody"
	mizumi_data "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
	"github.com/mizumi-finance/mizumi-server/pkg/pointer"
	"github.com/mizumi-finance/mizumi-server/pkg/retry"
	"github.com/mizumi-finance/mizumi-server/pkg/retry/backoff"
	sync_util "github.com/mizumi-finance/mizumi-server/pkg/sync"
)

const (
	metricsStructName = "ledger.ledger"

	userRegisteredEventName = "UserRegistered"
	swapOpenedEventName     = "SwapOpened"
	swapInitiatedEventName  = "SwapInitiated"
	swapCompletedEventName  = "SwapCompleted"

	userLockWaitMetricName = "Ledger_UserLockWait"

	txIsolation      = sql.LevelRepeatableRead
	txRetryBaseDelay = 10 * time.Millisecond
	txRetryMaxDelay  = 250 * time.Millisecond
	txRetryJitter    = 0.25
)

// Ledger records users and their swaps, and moves custody funds when swaps
// are initiated. Every operation on a user is executed exclusively and within
// a single data provider transaction.
type Ledger struct {
	log  *logrus.Entry
	conf *conf

	data        mizumi_data.Provider
	custody     *custody.Custody
	adminPolicy auth.AdminPolicy
	program     *common.Account

	userLocks *sync_util.StripedLock
}

func New(
	data mizumi_data.Provider,
	custody *custody.Custody,
	adminPolicy auth.AdminPolicy,
	opts ...Option,
) *Ledger {
	conf := defaultConf()
	for _, opt := range opts {
		opt(conf)
	}

	return &Ledger{
		log:         logrus.StandardLogger().WithField("type", "ledger/ledger"),
		conf:        conf,
		data:        data,
		custody:     custody,
		adminPolicy: adminPolicy,
		program:     common.ProgramAccount,
		userLocks:   sync_util.NewStripedLock(conf.lockStripes),
	}
}

// RegisterUser creates the user record for owner, along with the owner's
// stablecoin holders. Any user may register, exactly once.
func (l *Ledger) RegisterUser(ctx context.Context, owner *common.Account) (*user.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "RegisterUser")
	defer tracer.End()

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	log := l.log.WithFields(logrus.Fields{
		"method": "RegisterUser",
		"owner":  owner.PublicKey().ToBase58(),
	})

	userAddress, err := common.GetUserRecordAddress(l.program, owner)
	if err != nil {
		log.WithError(err).Warn("failure deriving user record address")
		return nil, err
	}

	record := &user.Record{
		Address:   userAddress.Account.PublicKey().ToBase58(),
		Bump:      userAddress.Bump,
		Owner:     owner.PublicKey().ToBase58(),
		CreatedAt: l.conf.clock(),
	}

	err = l.withUserLock(ctx, record.Address, func(ctx context.Context) error {
		_, err := l.data.GetUserByAddress(ctx, record.Address)
		if err == nil {
			return ErrAlreadyExists
		} else if err != user.ErrNotFound {
			return err
		}

		if err := l.custody.InitializeUserHolders(ctx, owner); err != nil {
			return err
		}

		err = l.data.CreateUser(ctx, record)
		if err == user.ErrExists {
			return ErrAlreadyExists
		}
		return err
	})
	if err != nil {
		l.onError(log, tracer, err, "failure registering user")
		return nil, err
	}

	metrics.RecordEvent(ctx, userRegisteredEventName, map[string]interface{}{
		"owner":   record.Owner,
		"address": record.Address,
	})
	log.WithField("address", record.Address).Info("user registered")

	return record, nil
}

// OpenFirstSwap creates the very first swap record for a registered user
func (l *Ledger) OpenFirstSwap(ctx context.Context, admin, owner *common.Account, swapId string) (*swap.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "OpenFirstSwap")
	defer tracer.End()

	return l.openSwap(ctx, tracer, "OpenFirstSwap", admin, owner, swapId, true)
}

// OpenSwap creates a swap record for a user that already has at least one swap
func (l *Ledger) OpenSwap(ctx context.Context, admin, owner *common.Account, swapId string) (*swap.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "OpenSwap")
	defer tracer.End()

	return l.openSwap(ctx, tracer, "OpenSwap", admin, owner, swapId, false)
}

func (l *Ledger) openSwap(ctx context.Context, tracer *metrics.MethodTracer, method string, admin, owner *common.Account, swapId string, isFirst bool) (*swap.Record, error) {
	tracer.AddAttribute("swap_id", swapId)

	if err := auth.RequireAdmin(ctx, l.adminPolicy, admin); err != nil {
		return nil, err
	}

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	log := l.log.WithFields(logrus.Fields{
		"method":  method,
		"owner":   owner.PublicKey().ToBase58(),
		"swap_id": swapId,
	})

	userAddress, swapAddress, err := l.getAddresses(owner, swapId)
	if err != nil {
		return nil, err
	}

	record := &swap.Record{
		Address:   swapAddress.Account.PublicKey().ToBase58(),
		Bump:      swapAddress.Bump,
		Owner:     owner.PublicKey().ToBase58(),
		SwapId:    swapId,
		State:     swap.StateCreated,
		CreatedAt: l.conf.clock(),
	}

	var swapCount uint64
	err = l.withUserLock(ctx, userAddress, func(ctx context.Context) error {
		userRecord, err := l.data.GetUserByAddress(ctx, userAddress)
		if err == user.ErrNotFound {
			return ErrPrecursorMissing
		} else if err != nil {
			return err
		}

		if isFirst && userRecord.SwapCount != 0 {
			return ErrNotFirstSwap
		}
		if !isFirst && userRecord.SwapCount == 0 {
			return ErrFirstSwapRequired
		}
		if userRecord.SwapCount >= common.MaxAmount {
			return ErrOverflow
		}

		_, err = l.data.GetSwapByAddress(ctx, record.Address)
		if err == nil {
			return ErrAlreadyExists
		} else if err != swap.ErrNotFound {
			return err
		}

		err = l.data.CreateSwap(ctx, record)
		if err == swap.ErrExists {
			return ErrAlreadyExists
		} else if err != nil {
			return err
		}

		userRecord.SwapCount++
		if err := l.data.UpdateUser(ctx, userRecord); err != nil {
			return err
		}

		swapCount = userRecord.SwapCount
		return nil
	})
	if err != nil {
		l.onError(log, tracer, err, "failure opening swap")
		return nil, err
	}

	metrics.RecordEvent(ctx, swapOpenedEventName, map[string]interface{}{
		"owner":      record.Owner,
		"swap_id":    record.SwapId,
		"address":    record.Address,
		"first_swap": isFirst,
		"swap_count": swapCount,
	})
	log.WithField("swap_count", swapCount).Info("swap opened")

	return record, nil
}

// Initiate records the terms of an opened swap and moves amount through custody
// in the swap's direction. Nothing is recorded if custody rejects the transfer.
func (l *Ledger) Initiate(
	ctx context.Context,
	admin, owner *common.Account,
	swapId string,
	stablecoin common.Stablecoin,
	amount uint64,
	fiat common.Fiat,
	direction common.Direction,
) (*swap.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Initiate")
	defer tracer.End()
	tracer.AddAttribute("swap_id", swapId)

	if err := auth.RequireAdmin(ctx, l.adminPolicy, admin); err != nil {
		return nil, err
	}

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	log := l.log.WithFields(logrus.Fields{
		"method":     "Initiate",
		"owner":      owner.PublicKey().ToBase58(),
		"swap_id":    swapId,
		"stablecoin": stablecoin.String(),
		"amount":     amount,
		"fiat":       fiat.String(),
		"direction":  direction.String(),
	})

	if !stablecoin.IsValid() || !fiat.IsValid() || !direction.IsValid() {
		return nil, ErrInvalidTerms
	}
	if amount > common.MaxAmount {
		return nil, ErrInvalidAmount
	}

	userAddress, swapAddress, err := l.getAddresses(owner, swapId)
	if err != nil {
		return nil, err
	}

	var record *swap.Record
	err = l.withUserLock(ctx, userAddress, func(ctx context.Context) error {
		var err error
		record, err = l.data.GetSwapByAddress(ctx, swapAddress.Account.PublicKey().ToBase58())
		if err == swap.ErrNotFound {
			return ErrPrecursorMissing
		} else if err != nil {
			return err
		}

		if record.State != swap.StateCreated {
			return ErrPrecursorMissing
		}

		err = l.custody.MoveFunds(ctx, stablecoin, direction, amount, owner)
		if err != nil {
			return err
		}

		record.State = swap.StateInitiated
		record.Stablecoin = stablecoin
		record.Fiat = fiat
		record.Direction = direction
		record.RequestedAmount = amount
		record.InitiatedAt = pointer.Time(l.conf.clock())

		return l.data.UpdateSwap(ctx, record)
	})
	if err != nil {
		l.onError(log, tracer, err, "failure initiating swap")
		return nil, err
	}

	metrics.RecordEvent(ctx, swapInitiatedEventName, map[string]interface{}{
		"owner":      record.Owner,
		"swap_id":    record.SwapId,
		"stablecoin": stablecoin.String(),
		"amount":     amount,
		"fiat":       fiat.String(),
		"direction":  direction.String(),
	})
	log.Info("swap initiated")

	return record, nil
}

// Complete records the settlement outcome of an initiated swap and adds
// settledAmount to the user's total settled value.
//
// The total is increased on every call, including repeated calls and calls
// reporting settled as false. Once a swap is reported settled, it stays
// settled, while the amount and timestamp reflect the latest call.
func (l *Ledger) Complete(ctx context.Context, admin, owner *common.Account, swapId string, settled bool, settledAmount uint64) (*swap.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Complete")
	defer tracer.End()
	tracer.AddAttribute("swap_id", swapId)

	if err := auth.RequireAdmin(ctx, l.adminPolicy, admin); err != nil {
		return nil, err
	}

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	if settledAmount > common.MaxAmount {
		return nil, ErrInvalidAmount
	}

	log := l.log.WithFields(logrus.Fields{
		"method":         "Complete",
		"owner":          owner.PublicKey().ToBase58(),
		"swap_id":        swapId,
		"settled":        settled,
		"settled_amount": settledAmount,
	})

	userAddress, swapAddress, err := l.getAddresses(owner, swapId)
	if err != nil {
		return nil, err
	}

	var record *swap.Record
	var totalSettledValue uint64
	err = l.withUserLock(ctx, userAddress, func(ctx context.Context) error {
		var err error
		record, err = l.data.GetSwapByAddress(ctx, swapAddress.Account.PublicKey().ToBase58())
		if err == swap.ErrNotFound {
			return ErrPrecursorMissing
		} else if err != nil {
			return err
		}

		if record.State != swap.StateInitiated && record.State != swap.StateCompleted {
			return ErrPrecursorMissing
		}

		userRecord, err := l.data.GetUserByAddress(ctx, userAddress)
		if err == user.ErrNotFound {
			return ErrPrecursorMissing
		} else if err != nil {
			return err
		}

		var ok bool
		totalSettledValue, ok = common.AddAmounts(userRecord.TotalSettledValue, settledAmount)
		if !ok {
			return ErrOverflow
		}

		if record.State == swap.StateCompleted {
			log.Warn("swap is being completed again")
		}

		record.State = swap.StateCompleted
		record.Settled = record.Settled || settled
		record.SettledAmount = settledAmount
		record.SettledAt = pointer.Time(l.conf.clock())
		if err := l.data.UpdateSwap(ctx, record); err != nil {
			return err
		}

		userRecord.TotalSettledValue = totalSettledValue
		return l.data.UpdateUser(ctx, userRecord)
	})
	if err != nil {
		l.onError(log, tracer, err, "failure completing swap")
		return nil, err
	}

	metrics.RecordEvent(ctx, swapCompletedEventName, map[string]interface{}{
		"owner":               record.Owner,
		"swap_id":             record.SwapId,
		"settled":             settled,
		"settled_amount":      settledAmount,
		"total_settled_value": totalSettledValue,
	})
	log.WithField("total_settled_value", totalSettledValue).Info("swap completed")

	return record, nil
}

// GetUser returns the user record for owner
func (l *Ledger) GetUser(ctx context.Context, owner *common.Account) (*user.Record, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetUser").End()

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	userAddress, err := common.GetUserRecordAddress(l.program, owner)
	if err != nil {
		return nil, err
	}

	record, err := l.data.GetUserByAddress(ctx, userAddress.Account.PublicKey().ToBase58())
	if err == user.ErrNotFound {
		return nil, ErrNotFound
	}
	return record, err
}

// GetSwap returns the owner's swap record for swapId
func (l *Ledger) GetSwap(ctx context.Context, owner *common.Account, swapId string) (*swap.Record, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetSwap").End()

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	swapAddress, err := common.GetSwapRecordAddress(l.program, owner, swapId)
	if err != nil {
		return nil, err
	}

	record, err := l.data.GetSwapByAddress(ctx, swapAddress.Account.PublicKey().ToBase58())
	if err == swap.ErrNotFound {
		return nil, ErrNotFound
	}
	return record, err
}

// GetSwaps returns a page of the owner's swap records in creation order
func (l *Ledger) GetSwaps(ctx context.Context, owner *common.Account, opts ...query.Option) ([]*swap.Record, error) {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "GetSwaps").End()

	if err := owner.Validate(); err != nil {
		return nil, ErrInvalidOwner
	}

	records, err := l.data.GetAllSwapsByOwner(ctx, owner.PublicKey().ToBase58(), opts...)
	if err == swap.ErrNotFound {
		return nil, nil
	}
	return records, err
}

func (l *Ledger) getAddresses(owner *common.Account, swapId string) (string, *common.DerivedAccount, error) {
	if err := common.ValidateSwapId(swapId); err != nil {
		return "", nil, err
	}

	userAddress, err := common.GetUserRecordAddress(l.program, owner)
	if err != nil {
		return "", nil, err
	}

	swapAddress, err := common.GetSwapRecordAddress(l.program, owner, swapId)
	if err != nil {
		return "", nil, err
	}

	return userAddress.Account.PublicKey().ToBase58(), swapAddress, nil
}

// withUserLock runs fn exclusively for the user, within a single transaction.
// Transactions aborted by concurrent writes to shared rows, such as vault
// balances, are retried from the start.
func (l *Ledger) withUserLock(ctx context.Context, userAddress string, fn func(ctx context.Context) error) error {
	start := time.Now()

	mu := l.userLocks.Get([]byte(userAddress))
	mu.Lock()
	defer mu.Unlock()

	if l.conf.lockManager != nil {
		distributedLock, err := l.conf.lockManager.Create(ctx, "/user/"+userAddress)
		if err != nil {
			return errors.Wrap(err, "error creating user lock")
		}

		lostCh, err := distributedLock.Acquire(ctx)
		if err != nil {
			return errors.Wrap(err, "error acquiring user lock")
		}
		defer func() {
			if err := distributedLock.Unlock(context.Background()); err != nil {
				l.log.WithError(err).WithField("address", userAddress).Warn("failure releasing user lock")
			}
		}()

		// Abandon the transaction if the lock is lost while it runs
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-lostCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	metrics.RecordDuration(ctx, userLockWaitMetricName, time.Since(start))

	attempts, err := retry.RetryWithContext(
		ctx,
		func(ctx context.Context) error {
			return l.data.ExecuteInTx(ctx, txIsolation, fn)
		},
		retry.RetriableIf(pg.IsSerializationFailure),
		retry.Limit(l.conf.maxTxAttempts),
		retry.BackoffWithJitter(backoff.BinaryExponential(txRetryBaseDelay), txRetryMaxDelay, txRetryJitter),
	)
	if attempts > 1 {
		l.log.WithFields(logrus.Fields{
			"address":  userAddress,
			"attempts": attempts,
		}).Debug("user transaction was retried")
	}
	return err
}

func (l *Ledger) onError(log *logrus.Entry, tracer *metrics.MethodTracer, err error, message string) {
	switch err {
	case ErrAlreadyExists, ErrNotFirstSwap, ErrFirstSwapRequired, ErrPrecursorMissing, ErrOverflow:
		log.WithError(err).Info(message)
		return
	}

	if errors.Is(err, ErrTransferFailed) {
		log.WithError(err).Info(message)
		return
	}

	log.WithError(err).Warn(message)
	tracer.OnError(err)
}
