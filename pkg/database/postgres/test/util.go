// Package test runs a throwaway postgres server in docker for store tests
package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/mizumi-finance/mizumi-server/pkg/retry"
	"github.com/mizumi-finance/mizumi-server/pkg/retry/backoff"
)

const (
	image = "postgres"
	tag   = "14.11"

	containerExpiry = 2 * time.Minute

	user     = "mizumi"
	password = "mizumi"
	dbName   = "mizumi_test"

	connectAttempts = 60
	connectInterval = 500 * time.Millisecond
)

// StartPostgresDB starts a postgres container and returns an open pool to it.
// closeFunc removes the container. Callers close the pool themselves.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, closeFunc func(), err error) {
	log := logrus.StandardLogger().WithField("type", "postgres/test")
	closeFunc = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "error starting postgres container")
	}

	_ = resource.Expire(uint(containerExpiry.Seconds()))

	closeFunc = func() {
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Warn("failure removing postgres container")
		}
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		user,
		password,
		resource.GetHostPort("5432/tcp"),
		dbName,
	)

	db, err = sql.Open("pgx", dsn)
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "error opening postgres pool")
	}

	attempts, err := retry.Retry(
		db.Ping,
		retry.Limit(connectAttempts),
		retry.Backoff(backoff.Constant(connectInterval), connectInterval),
	)
	if err != nil {
		db.Close()
		return nil, closeFunc, errors.Wrap(err, "postgres never became reachable")
	}

	log.WithField("attempts", attempts).Debug("postgres container ready")

	return db, closeFunc, nil
}
