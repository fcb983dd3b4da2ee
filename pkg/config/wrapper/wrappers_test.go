package wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/account-provisioner/pkg/config"
	"github.com/code-payments/account-provisioner/pkg/config/memory"
)

func TestBoolConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	testValueConfig(t, mock, NewBoolConfig(mock, true), true, false)

	mock.SetValue([]byte("false"))
	assert.False(t, NewBoolConfig(mock, true).Get(context.Background()))

	mock.SetValue([]byte("maybe"))
	_, err := NewBoolConfig(mock, true).GetSafe(context.Background())
	assert.Error(t, err)
}

func TestUint64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	testValueConfig(t, mock, NewUint64Config(mock, 30), uint64(30), uint64(60))

	mock.SetValue([]byte("90"))
	assert.EqualValues(t, 90, NewUint64Config(mock, 30).Get(context.Background()))

	mock.SetValue(12)
	assert.EqualValues(t, 12, NewUint64Config(mock, 30).Get(context.Background()))

	mock.SetValue(-1)
	val, err := NewUint64Config(mock, 30).GetSafe(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 30, val)

	mock.SetValue([]byte("-1"))
	_, err = NewUint64Config(mock, 30).GetSafe(context.Background())
	assert.Error(t, err)
}

func TestFloat64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	testValueConfig(t, mock, NewFloat64Config(mock, 0.5), 0.5, 2.0)

	mock.SetValue([]byte("0.25"))
	assert.Equal(t, 0.25, NewFloat64Config(mock, 0.5).Get(context.Background()))
}

func TestStringConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	testValueConfig(t, mock, NewStringConfig(mock, "default"), "default", "override")

	mock.SetValue([]byte("from env"))
	assert.Equal(t, "from env", NewStringConfig(mock, "default").Get(context.Background()))
}

func TestDurationConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	testValueConfig(t, mock, NewDurationConfig(mock, time.Second), time.Second, time.Minute)

	mock.SetValue([]byte("250ms"))
	assert.Equal(t, 250*time.Millisecond, NewDurationConfig(mock, time.Second).Get(context.Background()))

	mock.SetValue([]byte("soon"))
	_, err := NewDurationConfig(mock, time.Second).GetSafe(context.Background())
	assert.Error(t, err)
}

func testValueConfig[T any](t *testing.T, mock *memory.Config, wrapper config.Value[T], defaultValue, overridenValue T) {
	ctx := context.Background()

	// Return the default value when no override is set
	val, err := wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, wrapper.Get(ctx))

	// The overriden value is returned when set
	mock.SetValue(overridenValue)
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, wrapper.Get(ctx))

	// The last observed config value is returned on error
	mock.InduceErrors()
	val, err = wrapper.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, overridenValue, val)

	// The default value is returned when the override no longer has a value
	mock.StopInducingErrors()
	mock.ClearValue()
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)

	// Return an unsupported source value type
	mock.SetValue(struct{}{})
	val, err = wrapper.GetSafe(ctx)
	assert.Equal(t, ErrUnsuportedConversion, err)
	assert.Equal(t, defaultValue, val)

	mock.ClearValue()
}
