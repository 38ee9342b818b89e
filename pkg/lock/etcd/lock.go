package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/mizumi-finance/mizumi-server/pkg/lock"
)

const (
	minLockTTL = time.Second
	maxLockTTL = time.Minute

	sessionRetryDelay = time.Second
	resignTimeout     = 5 * time.Second
)

var (
	ErrInvalidTTL       = errors.New("lock ttl must be within [1s, 60s]")
	ErrManagerClosed    = errors.New("lock manager is closed")
	ErrAlreadyAcquiring = errors.New("lock is already held or being acquired")
)

// LockManager creates locks backed by etcd elections. All locks share a single
// lease, so closing the manager releases every lock it created.
type LockManager struct {
	log     *logrus.Entry
	client  *v3.Client
	rootKey string
	ttl     int
	value   string

	closeOnce sync.Once
	closeCh   chan struct{}

	mu      sync.Mutex
	session *concurrency.Session
}

// NewLockManager creates a LockManager storing locks under rootKey. The value
// is written into each held lock key and identifies the holder.
func NewLockManager(client *v3.Client, rootKey string, ttl time.Duration, value string) (*LockManager, error) {
	if ttl < minLockTTL || ttl > maxLockTTL {
		return nil, ErrInvalidTTL
	}

	lm := &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/etcd",
			"root": rootKey,
		}),
		client:  client,
		rootKey: rootKey,
		ttl:     int(ttl.Round(time.Second).Seconds()),
		value:   value,
		closeCh: make(chan struct{}),
	}

	session, err := lm.newSession()
	if err != nil {
		return nil, errors.Wrap(err, "error creating etcd session")
	}
	lm.session = session

	go lm.keepSession()

	return lm, nil
}

// Create implements lock.Manager.Create
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if lm.currentSession() == nil {
		return nil, ErrManagerClosed
	}

	key := path.Join(lm.rootKey, name)
	return &Lock{
		log: lm.log.WithField("key", key),
		lm:  lm,
		key: key,
	}, nil
}

// Close revokes the manager's lease. Locks it created are released.
func (lm *LockManager) Close() {
	lm.closeOnce.Do(func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()

		close(lm.closeCh)

		if err := lm.session.Close(); err != nil {
			lm.log.WithError(err).Warn("failure closing etcd session")
		}
		lm.session = nil
	})
}

func (lm *LockManager) newSession() (*concurrency.Session, error) {
	return concurrency.NewSession(
		lm.client,
		concurrency.WithTTL(lm.ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
}

func (lm *LockManager) currentSession() *concurrency.Session {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.session
}

// keepSession replaces the session whenever its lease is lost, for example
// after the cluster was leaderless for longer than the ttl.
func (lm *LockManager) keepSession() {
	for {
		session := lm.currentSession()
		if session == nil {
			return
		}

		select {
		case <-lm.closeCh:
			return
		case <-session.Done():
		}

		lm.log.Info("etcd session expired, recreating")

		for {
			replacement, err := lm.newSession()
			if err == nil {
				lm.mu.Lock()
				if lm.session == nil {
					lm.mu.Unlock()
					replacement.Close()
					return
				}
				lm.session = replacement
				lm.mu.Unlock()
				break
			}

			lm.log.WithError(err).Warn("failure recreating etcd session")

			select {
			case <-lm.closeCh:
				return
			case <-time.After(sessionRetryDelay):
			}
		}
	}
}

// Lock is a lock.DistributedLock held through an etcd election on its key
type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string

	mu       sync.Mutex
	election *concurrency.Election
}

// Acquire implements lock.DistributedLock.Acquire
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session := l.lm.currentSession()
	if session == nil {
		return nil, ErrManagerClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != nil {
		return nil, ErrAlreadyAcquiring
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)

	election := concurrency.NewElection(session, l.key)
	if err := election.Campaign(watchCtx, l.lm.value); err != nil {
		cancelWatch()
		return nil, errors.Wrap(err, "error campaigning for lock")
	}
	l.election = election

	l.log.Trace("lock acquired")

	watchCh := session.Client().Watch(
		v3.WithRequireLeader(watchCtx),
		election.Key(),
		v3.WithRev(election.Rev()),
	)

	lostCh := make(chan struct{})
	go func() {
		defer cancelWatch()
		defer l.release(election)

		// Signal loss before resigning, which blocks while the cluster has
		// no leader.
		defer close(lostCh)

		l.watchHeld(session, election, watchCh)
	}()

	return lostCh, nil
}

// watchHeld returns once the held election key may no longer belong to us
func (l *Lock) watchHeld(session *concurrency.Session, election *concurrency.Election, watchCh v3.WatchChan) {
	for {
		select {
		case <-session.Done():
			l.log.Warn("etcd session ended while holding lock")
			return
		case resp, ok := <-watchCh:
			if !ok {
				return
			}
			if err := resp.Err(); err != nil {
				l.log.WithError(err).Warn("failure watching lock key")
				return
			}

			for _, event := range resp.Events {
				if event.Type == mvccpb.DELETE {
					return
				}
				if event.Type == mvccpb.PUT && event.Kv.CreateRevision != election.Rev() {
					l.log.Warn("lock key was recreated by another holder")
					return
				}
			}
		}
	}
}

func (l *Lock) release(election *concurrency.Election) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != election {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resignTimeout)
	defer cancel()

	if err := election.Resign(ctx); err != nil {
		l.log.WithError(err).Warn("failure resigning lost lock")
	}
	l.election = nil
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election == nil {
		return nil
	}

	err := l.election.Resign(ctx)
	l.election = nil
	return err
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.election != nil && len(l.election.Key()) > 0
}
