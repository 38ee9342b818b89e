package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/nonce"
)

const (
	replayGuardMetricsStructName = "auth.replay_guard"
)

var (
	ErrInvalidNonce    = errors.New("request nonce is missing or too long")
	ErrStaleRequest    = errors.New("request timestamp is outside the accepted window")
	ErrReplayedRequest = errors.New("request nonce was already used")
)

// NonceStore persists consumed request nonces
type NonceStore interface {
	ClaimNonce(ctx context.Context, record *nonce.Record) error
	DeleteNoncesBefore(ctx context.Context, before time.Time) (uint64, error)
}

// ReplayGuard accepts each signed request at most once. A request carries a
// signer chosen nonce and a timestamp that must be within window of the
// server clock. Nonces are remembered for as long as their request could
// still pass the timestamp check.
type ReplayGuard struct {
	log    *logrus.Entry
	nonces NonceStore
	window time.Duration
	clock  func() time.Time
}

func NewReplayGuard(nonces NonceStore, window time.Duration) *ReplayGuard {
	return &ReplayGuard{
		log:    logrus.StandardLogger().WithField("type", "auth/replay_guard"),
		nonces: nonces,
		window: window,
		clock:  time.Now,
	}
}

// Check validates the request timestamp and consumes the signer's nonce
func (g *ReplayGuard) Check(ctx context.Context, signer *common.Account, value string, timestamp time.Time) error {
	defer metrics.TraceMethodCall(ctx, replayGuardMetricsStructName, "Check").End()

	if len(value) == 0 || len(value) > nonce.MaxValueLength {
		return ErrInvalidNonce
	}

	now := g.clock()
	if timestamp.Before(now.Add(-g.window)) || timestamp.After(now.Add(g.window)) {
		return ErrStaleRequest
	}

	err := g.nonces.ClaimNonce(ctx, &nonce.Record{
		Signer:    signer.PublicKey().ToBase58(),
		Value:     value,
		CreatedAt: now,
	})
	if err == nonce.ErrExists {
		g.log.WithFields(logrus.Fields{
			"method": "Check",
			"signer": signer.PublicKey().ToBase58(),
			"nonce":  value,
		}).Info("rejecting replayed request")
		return ErrReplayedRequest
	}
	return err
}

// Purge forgets nonces whose requests would now fail the timestamp check
func (g *ReplayGuard) Purge(ctx context.Context) (uint64, error) {
	return g.nonces.DeleteNoncesBefore(ctx, g.clock().Add(-2*g.window))
}

// Run purges expired nonces every interval until ctx is done
func (g *ReplayGuard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		deleted, err := g.Purge(ctx)
		if err != nil {
			g.log.WithError(err).Warn("failure purging expired nonces")
			continue
		}
		if deleted > 0 {
			g.log.WithField("deleted", deleted).Debug("purged expired nonces")
		}
	}
}
