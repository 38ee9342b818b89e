package server

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/grpc/app"
)

const (
	dataStorePostgres = "postgres"
	dataStoreMemory   = "memory"

	adminKeysEnvName      = "MIZUMI_ADMIN_KEYS"
	writesDisabledEnvName = "MIZUMI_DISABLE_WRITES"
)

type conf struct {
	HttpListenAddress string        `mapstructure:"http_listen_address"`
	HttpReadTimeout   time.Duration `mapstructure:"http_read_timeout"`
	HttpWriteTimeout  time.Duration `mapstructure:"http_write_timeout"`

	// DataStore is either postgres or memory. The memory store loses all state
	// on restart and is intended for local development.
	DataStore string `mapstructure:"data_store"`

	PostgresUser               string `mapstructure:"postgres_user"`
	PostgresPassword           string `mapstructure:"postgres_password"`
	PostgresHost               string `mapstructure:"postgres_host"`
	PostgresPort               int    `mapstructure:"postgres_port"`
	PostgresDbName             string `mapstructure:"postgres_db_name"`
	PostgresMaxOpenConnections int    `mapstructure:"postgres_max_open_connections"`
	PostgresMaxIdleConnections int    `mapstructure:"postgres_max_idle_connections"`
	PostgresUseAwsIam          bool   `mapstructure:"postgres_use_aws_iam"`

	// EtcdEndpoints enables distributed user locks when set, which is required
	// when more than one replica shares the same database.
	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints"`
	EtcdDialTimeout time.Duration `mapstructure:"etcd_dial_timeout"`
	EtcdLockRoot    string        `mapstructure:"etcd_lock_root"`
	EtcdLockTTL     time.Duration `mapstructure:"etcd_lock_ttl"`

	LockStripes uint `mapstructure:"lock_stripes"`

	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`

	// TrustedProxies are the CIDR ranges or addresses of load balancers whose
	// x-forwarded-for header identifies the client for rate limiting
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// Signed requests must carry a timestamp within ReplayWindow of the server
	// clock and a nonce that was never used by the same owner
	ReplayWindow       time.Duration `mapstructure:"replay_window"`
	NoncePurgeInterval time.Duration `mapstructure:"nonce_purge_interval"`

	InitializeVaults bool `mapstructure:"initialize_vaults"`
}

var defaultConf = conf{
	HttpListenAddress: ":8080",
	HttpReadTimeout:   10 * time.Second,
	HttpWriteTimeout:  30 * time.Second,

	DataStore: dataStorePostgres,

	PostgresPort: 5432,

	EtcdDialTimeout: 5 * time.Second,
	EtcdLockRoot:    "/mizumi/locks",
	EtcdLockTTL:     10 * time.Second,

	LockStripes: 1024,

	RateLimitPerSecond: 50,

	ReplayWindow:       2 * time.Minute,
	NoncePurgeInterval: time.Minute,

	InitializeVaults: true,
}

func newConf(appConfig app.Config) (*conf, error) {
	c := defaultConf

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(map[string]interface{}(appConfig)); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}

	switch c.DataStore {
	case dataStorePostgres:
		if len(c.PostgresHost) == 0 || len(c.PostgresUser) == 0 || len(c.PostgresDbName) == 0 {
			return nil, errors.New("postgres host, user and db name are required")
		}
	case dataStoreMemory:
	default:
		return nil, errors.Errorf("unsupported data store: %s", c.DataStore)
	}

	if len(c.HttpListenAddress) == 0 {
		return nil, errors.New("http listen address is required")
	}

	if c.LockStripes == 0 {
		return nil, errors.New("lock stripes must be positive")
	}

	if c.ReplayWindow <= 0 || c.NoncePurgeInterval <= 0 {
		return nil, errors.New("replay window and nonce purge interval must be positive")
	}

	return &c, nil
}
