package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/rdsutils"
	"github.com/pkg/errors"

	// Registers the New Relic instrumented pgx driver
	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

const (
	driverName = "nrpgx"

	defaultConnMaxLifetime = time.Hour
)

// PoolConfig bounds the connection pool of a *sql.DB. Zero values leave the
// database/sql defaults in place.
type PoolConfig struct {
	MaxOpenConnections int
	MaxIdleConnections int
}

// NewWithAwsIam connects using a short lived RDS IAM auth token in place of a
// password. Only provisioned Aurora clusters support IAM auth.
//
// https://docs.aws.amazon.com/AmazonRDS/latest/AuroraUserGuide/UsingWithRDS.IAMDBAuth.Connecting.Go.html
func NewWithAwsIam(username, hostname, port, dbname string, config aws.Config) (*sql.DB, error) {
	rdsClient := rds.New(config)

	authToken, err := rdsutils.BuildAuthToken(
		fmt.Sprintf("%s:%s", hostname, port),
		rdsClient.Region,
		username,
		rdsClient.Credentials,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error building rds auth token")
	}

	return open(fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s",
		hostname, port, username, authToken, dbname,
	))
}

// NewWithUsernameAndPassword connects using static credentials
func NewWithUsernameAndPassword(username, password, hostname, port, dbname string) (*sql.DB, error) {
	// TODO: enable sslmode=verify-full once the RDS CA bundle is shipped with the image
	return open(fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		username, password, hostname, port, dbname,
	))
}

// ConfigurePool applies the pool limits to db
func ConfigurePool(db *sql.DB, config PoolConfig) {
	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	db.SetConnMaxIdleTime(defaultConnMaxLifetime)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error pinging database")
	}
	return db, nil
}
