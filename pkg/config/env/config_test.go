package env

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/account-provisioner/pkg/config"
)

func TestConfigDoesntExist(t *testing.T) {
	const env = "ENV_CONFIG_TEST_VAR"
	t.Setenv(env, "default")

	v, err := NewConfig(env).Get(context.Background())
	assert.Equal(t, []byte("default"), v)
	assert.Nil(t, err)

	t.Setenv(env, "  ")

	v, err = NewConfig(env).Get(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)
}

func TestConfigObservesChanges(t *testing.T) {
	const env = "ENV_CONFIG_TEST_POLL_INTERVAL"

	pollInterval := NewDurationConfig("env_config_test_poll_interval", time.Second)
	assert.Equal(t, time.Second, pollInterval.Get(context.Background()))

	t.Setenv(env, "100ms")
	assert.Equal(t, 100*time.Millisecond, pollInterval.Get(context.Background()))

	t.Setenv(env, "")
	assert.Equal(t, time.Second, pollInterval.Get(context.Background()))
}
