package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/account-provisioner/pkg/config"
)

func TestConfig(t *testing.T) {
	ctx := context.Background()

	c := NewConfig(nil)
	_, err := c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.SetValue("500ms")
	val, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "500ms", val)

	c.SetValue(uint64(120))
	val, err = c.Get(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 120, val)

	c.ClearValue()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.InduceErrors()
	_, err = c.Get(ctx)
	assert.Equal(t, errDeveloperInduced, err)

	c.StopInducingErrors()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	assert.Equal(t, 6, c.Reads())

	c.Shutdown()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)
}

func TestConfig_InitialValue(t *testing.T) {
	c := NewConfig("confirmed")

	val, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "confirmed", val)
}
