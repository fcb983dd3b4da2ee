package test

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/retry"
	"github.com/code-payments/account-provisioner/pkg/retry/backoff"
	"github.com/code-payments/account-provisioner/pkg/solana"
)

const (
	containerName     = "solanalabs/solana"
	containerVersion  = "v1.18.26"
	containerAutoKill = 300 * time.Second

	rpcPort = 8899
)

// IsDockerAvailable reports whether a Docker daemon can be reached through pool.
func IsDockerAvailable(pool *dockertest.Pool) bool {
	return pool != nil && pool.Client != nil && pool.Client.Ping() == nil
}

// StartSolanaValidator starts a solana-test-validator container and returns a
// client connected to its RPC endpoint.
func StartSolanaValidator(pool *dockertest.Pool) (client solana.Client, endpoint string, closeFunc func(), err error) {
	closeFunc = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: containerName,
		Tag:        containerVersion,
		Entrypoint: []string{"solana-test-validator"},
		Cmd: []string{
			"--reset",
			"--quiet",
			"--ledger", "/tmp/test-ledger",
			"--rpc-port", fmt.Sprintf("%d", rpcPort),
		},
		ExposedPorts: []string{fmt.Sprintf("%d/tcp", rpcPort)},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, "", closeFunc, errors.Wrapf(err, "failed to start resource")
	}

	closeFunc = func() {
		_ = pool.Purge(resource)
	}

	// 2024/04/11: Expire() _never_ returns an error.
	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	endpoint = fmt.Sprintf("http://%s", resource.GetHostPort(fmt.Sprintf("%d/tcp", rpcPort)))
	client = solana.New(endpoint)

	_, err = retry.Retry(
		context.Background(),
		func() error {
			_, err := client.GetLatestBlockhash()
			return err
		},
		retry.Limit(120),
		retry.Backoff(backoff.Constant(500*time.Millisecond), 500*time.Millisecond),
	)
	if err != nil {
		closeFunc()
		return nil, "", func() {}, errors.Wrap(err, "timed out waiting for validator container to become available")
	}

	return client, endpoint, closeFunc, nil
}
