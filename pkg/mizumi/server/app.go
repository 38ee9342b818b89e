package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	xrate "golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/mizumi-finance/mizumi-server/pkg/config/env"
	pg "github.com/mizumi-finance/mizumi-server/pkg/database/postgres"
	"github.com/mizumi-finance/mizumi-server/pkg/grpc/app"
	"github.com/mizumi-finance/mizumi-server/pkg/lock/etcd"
	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	mizumi_config "github.com/mizumi-finance/mizumi-server/pkg/mizumi/config"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/custody"
	mizumi_data "github.com/mizumi-finance/mizumi-server/pkg/mizumi/data"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/ledger"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/server/web/settlement"
	"github.com/mizumi-finance/mizumi-server/pkg/rate"
)

const (
	httpShutdownTimeout = 10 * time.Second
)

// App runs the settlement ledger behind its HTTP API
type App struct {
	log *logrus.Entry

	conf *conf

	db          *sql.DB
	etcdClient  *v3.Client
	lockManager *etcd.LockManager

	httpListener net.Listener
	httpServer   *http.Server

	workerCtx    context.Context
	cancelWorker context.CancelFunc

	stopOnce   sync.Once
	shutdownCh chan struct{}
}

func NewApp() *App {
	return &App{
		log:        logrus.StandardLogger().WithField("type", "mizumi/server"),
		shutdownCh: make(chan struct{}),
	}
}

// Init implements app.App.Init
func (a *App) Init(appConfig app.Config, metricsProvider *newrelic.Application) error {
	var err error
	a.conf, err = newConf(appConfig)
	if err != nil {
		return err
	}

	ctx := metrics.WithApplication(context.Background(), metricsProvider)

	data, err := a.initData()
	if err != nil {
		return err
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLockStripes(a.conf.LockStripes),
	}
	if len(a.conf.EtcdEndpoints) > 0 {
		if err := a.initLocks(); err != nil {
			return err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithDistributedLocks(a.lockManager))
	}

	custodian, err := custody.New(data, common.ProgramAccount)
	if err != nil {
		return errors.Wrap(err, "error initializing custody")
	}

	if a.conf.InitializeVaults {
		if err := custodian.InitializeVaults(ctx); err != nil {
			return err
		}
	}

	adminPolicy := auth.NewConfigAdminPolicy(env.NewStringConfig(adminKeysEnvName, mizumi_config.AdminPublicKeyString))

	var limiter rate.Limiter = &rate.NoLimiter{}
	if a.conf.RateLimitPerSecond > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(a.conf.RateLimitPerSecond))
	}

	trustedProxies, err := settlement.ParseTrustedProxies(a.conf.TrustedProxies)
	if err != nil {
		return err
	}

	replayGuard := auth.NewReplayGuard(data, a.conf.ReplayWindow)
	a.workerCtx, a.cancelWorker = context.WithCancel(ctx)
	go replayGuard.Run(a.workerCtx, a.conf.NoncePurgeInterval)

	server := settlement.NewSettlementServer(
		ledger.New(data, custodian, adminPolicy, ledgerOpts...),
		adminPolicy,
		auth.NewSignatureVerifier(),
		replayGuard,
		limiter,
		env.NewBoolConfig(writesDisabledEnvName, false),
		trustedProxies,
		metricsProvider,
	)

	mux := http.NewServeMux()
	for path, handler := range server.GetHandlers() {
		mux.HandleFunc(path, handler)
	}

	a.httpListener, err = net.Listen("tcp", a.conf.HttpListenAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", a.conf.HttpListenAddress)
	}

	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  a.conf.HttpReadTimeout,
		WriteTimeout: a.conf.HttpWriteTimeout,
	}

	go func() {
		err := a.httpServer.Serve(a.httpListener)
		if err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Error("http serve stopped")
		} else {
			a.log.Info("http server stopped")
		}
		a.Stop()
	}()

	a.log.WithField("address", a.httpListener.Addr().String()).Info("http server started")

	return nil
}

func (a *App) initData() (mizumi_data.Provider, error) {
	if a.conf.DataStore == dataStoreMemory {
		a.log.Warn("using the in memory data store, all state is lost on restart")
		return mizumi_data.NewTestDatabaseProvider(), nil
	}

	var err error
	if a.conf.PostgresUseAwsIam {
		awsConfig, err := external.LoadDefaultAWSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "error loading aws config")
		}

		a.db, err = pg.NewWithAwsIam(
			a.conf.PostgresUser,
			a.conf.PostgresHost,
			fmt.Sprint(a.conf.PostgresPort),
			a.conf.PostgresDbName,
			awsConfig,
		)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres")
		}
	} else {
		a.db, err = pg.NewWithUsernameAndPassword(
			a.conf.PostgresUser,
			a.conf.PostgresPassword,
			a.conf.PostgresHost,
			fmt.Sprint(a.conf.PostgresPort),
			a.conf.PostgresDbName,
		)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres")
		}
	}

	pg.ConfigurePool(a.db, pg.PoolConfig{
		MaxOpenConnections: a.conf.PostgresMaxOpenConnections,
		MaxIdleConnections: a.conf.PostgresMaxIdleConnections,
	})

	return mizumi_data.NewDatabaseProviderFromDB(a.db), nil
}

func (a *App) initLocks() error {
	var err error
	a.etcdClient, err = v3.New(v3.Config{
		Endpoints:   a.conf.EtcdEndpoints,
		DialTimeout: a.conf.EtcdDialTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "error connecting to etcd")
	}

	lockValue := a.conf.HttpListenAddress
	if host, err := os.Hostname(); err == nil {
		lockValue = host
	}

	a.lockManager, err = etcd.NewLockManager(a.etcdClient, a.conf.EtcdLockRoot, a.conf.EtcdLockTTL, lockValue)
	if err != nil {
		return errors.Wrap(err, "error creating lock manager")
	}
	return nil
}

// RegisterWithGRPC implements app.App.RegisterWithGRPC
func (a *App) RegisterWithGRPC(server *grpc.Server) {
}

// ShutdownChan implements app.App.ShutdownChan
func (a *App) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

// Stop implements app.App.Stop
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.cancelWorker != nil {
			a.cancelWorker()
		}

		if a.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			if err := a.httpServer.Shutdown(ctx); err != nil {
				a.log.WithError(err).Warn("failure shutting down http server")
			}
			cancel()
		}

		if a.lockManager != nil {
			a.lockManager.Close()
		}
		if a.etcdClient != nil {
			if err := a.etcdClient.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing etcd client")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing db")
			}
		}

		close(a.shutdownCh)
	})
}

// HttpAddress returns the address the HTTP API is bound to
func (a *App) HttpAddress() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}
