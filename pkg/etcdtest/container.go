// Package etcdtest runs a throwaway etcd node in docker for integration tests
package etcdtest

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
)

const (
	image = "quay.io/coreos/etcd"
	tag   = "v3.5.13"

	clientPort = "2379/tcp"

	containerExpiry = 2 * time.Minute
	readyTimeout    = time.Second
	readyKey        = "/etcdtest/ready"
)

// StartEtcd starts a single node cluster and returns a connected client. The
// container is removed by teardown, or by docker once it expires.
func StartEtcd(pool *dockertest.Pool) (client *v3.Client, teardown func(), err error) {
	log := logrus.StandardLogger().WithField("type", "etcdtest")
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"ALLOW_NONE_AUTHENTICATION=true",
			"ETCD_LISTEN_CLIENT_URLS=http://0.0.0.0:2379",
			"ETCD_ADVERTISE_CLIENT_URLS=http://0.0.0.0:2379",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, teardown, errors.Wrap(err, "error starting etcd container")
	}

	_ = resource.Expire(uint(containerExpiry.Seconds()))

	teardown = func() {
		if client != nil {
			client.Close()
		}
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Warn("failure removing etcd container")
		}
	}

	client, err = v3.New(v3.Config{
		Endpoints:   []string{fmt.Sprintf("localhost:%s", resource.GetPort(clientPort))},
		DialTimeout: readyTimeout,
	})
	if err != nil {
		return nil, teardown, errors.Wrap(err, "error creating etcd client")
	}

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()

		_, err := client.Get(ctx, readyKey)
		return err
	})
	if err != nil {
		return nil, teardown, errors.Wrap(err, "etcd never became reachable")
	}

	return client, teardown, nil
}
