package app

import (
	"crypto/tls"
	"expvar"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	grpc_util "github.com/mizumi-finance/mizumi-server/pkg/grpc"
	"github.com/mizumi-finance/mizumi-server/pkg/grpc/metrics"
	metrics_util "github.com/mizumi-finance/mizumi-server/pkg/metrics"
	"github.com/mizumi-finance/mizumi-server/pkg/osutil"
)

// App is a process wide service. It may serve HTTP, gRPC or both. HTTP
// servers belong to the App, which starts them in Init and stops them in Stop.
//
// Run initializes the App before gRPC serving begins and stops it once the
// gRPC servers have drained.
type App interface {
	// Init blocks until the App is ready to receive requests
	Init(config Config, metricsProvider *newrelic.Application) error

	// RegisterWithGRPC installs the App's gRPC services, if any
	RegisterWithGRPC(server *grpc.Server)

	// ShutdownChan is closed when the App stops on its own. Run then shuts
	// down the process.
	ShutdownChan() <-chan struct{}

	// Stop releases the App's resources. It must be idempotent.
	Stop()
}

const (
	maxBallastCapacity = 0.5

	debugServerRetryDelay = 5 * time.Second
)

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

func Run(app App, options ...Option) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "grpc/app")

	var o opts
	for _, option := range options {
		option(&o)
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(1)
	}
	o.apply(&config)

	if len(config.AppName) == 0 {
		logger.Error("must specify an application name")
		os.Exit(1)
	}

	metricsProvider, err := newMetricsProvider(config)
	if err != nil {
		logger.WithError(err).Error("error connecting to new relic")
		os.Exit(1)
	}

	configureLogger(config, metricsProvider)

	// Clear handlers that pprof and expvar install on the default mux, which
	// Apps may serve publicly.
	http.DefaultServeMux = http.NewServeMux()

	startDebugServer(logger, config)

	ballast := make([]byte, ballastSize(config, osutil.GetTotalMemory()))

	memoryLeakShutdownCh := make(chan struct{})
	if config.EnableMemoryLeakCron {
		cronJob := cron.New(cron.WithLocation(time.Local))
		_, err = cronJob.AddFunc(config.MemoryLeakCronSchedule, func() {
			close(memoryLeakShutdownCh)
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize memory leak cron")
			os.Exit(1)
		}
		cronJob.Start()
		defer cronJob.Stop()
	}

	insecureLis, err := net.Listen("tcp", config.InsecureListenAddress)
	if err != nil {
		logger.WithError(err).Errorf("failed to listen on %s", config.InsecureListenAddress)
		os.Exit(1)
	}

	transportCreds, err := loadTransportCredentials(config)
	if err != nil {
		logger.WithError(err).Error("failed to load tls credentials")
		os.Exit(1)
	}

	var secureLis net.Listener
	if transportCreds != nil {
		secureLis, err = net.Listen("tcp", config.ListenAddress)
		if err != nil {
			logger.WithError(err).Errorf("failed to listen on %s", config.ListenAddress)
			os.Exit(1)
		}
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		logger.WithError(err).Error("failed to initialize application")
		os.Exit(1)
	}

	servers := []*grpc.Server{newGRPCServer(app, metricsProvider)}
	servingChs := []<-chan struct{}{serve(logger, servers[0], insecureLis)}
	if secureLis != nil {
		secureServ := newGRPCServer(app, metricsProvider, grpc.Creds(transportCreds))
		servers = append(servers, secureServ)
		servingChs = append(servingChs, serve(logger, secureServ, secureLis))
	}

	servingCh := firstClosed(servingChs...)

	select {
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
	case <-servingCh:
		logger.Info("grpc server shutdown")
	case <-memoryLeakShutdownCh:
		logger.Info("shutdown to deal with memory leak")
	case <-app.ShutdownChan():
		logger.Info("app shutdown")
	}

	shutdownCh := make(chan struct{})
	go func() {
		for _, server := range servers {
			server.GracefulStop()
		}
		app.Stop()

		close(shutdownCh)
	}()

	select {
	case <-shutdownCh:
		runtime.KeepAlive(ballast)
		return nil
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

// loadConfig reads the config file at path, if present, overlaid with bound
// environment variables
func loadConfig(path string) (BaseConfig, error) {
	// An explicitly set file that does not exist is never reported as
	// ConfigFileNotFoundError, so only set it when present.
	if _, err := os.Stat(path); err == nil {
		viper.SetConfigFile(path)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	if _, isNotFound := err.(viper.ConfigFileNotFoundError); err != nil && !isNotFound {
		return BaseConfig{}, err
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return config, nil
}

func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

func startDebugServer(logger *logrus.Entry, config BaseConfig) {
	if !config.EnableExpvar && !config.EnablePprof {
		return
	}

	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	go func() {
		for {
			if err := http.ListenAndServe(config.DebugListenAddress, mux); err != nil {
				logger.WithError(err).Warnf("debug http server failed, retrying in %v", debugServerRetryDelay)
			}
			time.Sleep(debugServerRetryDelay)
		}
	}()
}

// ballastSize is the heap ballast for the configured share of total memory
func ballastSize(config BaseConfig, totalMemory uint64) uint64 {
	if !config.EnableBallast || config.BallastCapacity <= 0 {
		return 0
	}

	capacity := float64(config.BallastCapacity)
	if capacity > maxBallastCapacity {
		capacity = maxBallastCapacity
	}
	return uint64(capacity * float64(totalMemory))
}

func loadTransportCredentials(config BaseConfig) (credentials.TransportCredentials, error) {
	if len(config.TLSCertificate) == 0 {
		return nil, nil
	}
	if len(config.TLSKey) == 0 {
		return nil, errors.New("tls key must be provided if certificate is specified")
	}

	certBytes, err := LoadFile(config.TLSCertificate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls certificate")
	}

	keyBytes, err := LoadFile(config.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls key")
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid certificate or private key")
	}

	return credentials.NewServerTLSFromCert(&cert), nil
}

func newGRPCServer(app App, metricsProvider *newrelic.Application, serverOpts ...grpc.ServerOption) *grpc.Server {
	grpcLogger := logrus.StandardLogger().WithField("type", "grpc/server")

	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
			grpcLogger.WithField("panic", p).Error("recovered from panic in grpc handler")
			return status.Error(codes.Internal, "internal error")
		}),
	}
	loggingOpts := []grpc_logrus.Option{
		grpc_logrus.WithDecider(grpc_util.ShouldLogCall),
	}

	// Recovery must remain the outermost interceptor.
	serverOpts = append(
		serverOpts,
		grpc_middleware.WithUnaryServerChain(
			grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
			grpc_ctxtags.UnaryServerInterceptor(),
			metrics.NewRelicUnaryServerInterceptor(metricsProvider),
			grpc_logrus.UnaryServerInterceptor(grpcLogger, loggingOpts...),
		),
		grpc_middleware.WithStreamServerChain(
			grpc_recovery.StreamServerInterceptor(recoveryOpts...),
			grpc_ctxtags.StreamServerInterceptor(),
			metrics.NewRelicStreamServerInterceptor(metricsProvider),
			grpc_logrus.StreamServerInterceptor(grpcLogger, loggingOpts...),
		),
	)

	server := grpc.NewServer(serverOpts...)
	app.RegisterWithGRPC(server)
	healthgrpc.RegisterHealthServer(server, health.NewServer())
	return server
}

// serve runs server on lis in the background. The returned channel is closed
// when serving stops.
func serve(logger *logrus.Entry, server *grpc.Server, lis net.Listener) <-chan struct{} {
	doneCh := make(chan struct{})
	log := logger.WithField("address", lis.Addr().String())

	go func() {
		defer close(doneCh)

		if err := server.Serve(lis); err != nil {
			log.WithError(err).Error("grpc serve stopped")
		} else {
			log.Info("grpc server stopped")
		}
	}()

	return doneCh
}

func firstClosed(chs ...<-chan struct{}) <-chan struct{} {
	var once sync.Once
	closedCh := make(chan struct{})
	for _, ch := range chs {
		go func(ch <-chan struct{}) {
			<-ch
			once.Do(func() { close(closedCh) })
		}(ch)
	}
	return closedCh
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if metricsProvider != nil {
		formatter = metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, formatter)
	}
	logrus.SetFormatter(formatter)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}
