package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := Constant(250 * time.Millisecond)
	for attempts := uint(1); attempts < 8; attempts++ {
		assert.Equal(t, 250*time.Millisecond, s(attempts))
	}
}

func TestLinear(t *testing.T) {
	s := Linear(time.Second)

	for attempts, expected := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		assert.Equal(t, expected, s(uint(attempts+1)))
	}
	assert.EqualValues(t, math.MaxInt64, s(math.MaxUint32*4))
}

func TestExponential(t *testing.T) {
	s := Exponential(time.Second, 3)

	assert.Equal(t, 1*time.Second, s(1))
	assert.Equal(t, 3*time.Second, s(2))
	assert.Equal(t, 9*time.Second, s(3))
	assert.Equal(t, 27*time.Second, s(4))

	assert.EqualValues(t, math.MaxInt64, s(200))
}

func TestBinaryExponential(t *testing.T) {
	s := BinaryExponential(500 * time.Millisecond)

	assert.Equal(t, 500*time.Millisecond, s(1))
	assert.Equal(t, 1*time.Second, s(2))
	assert.Equal(t, 2*time.Second, s(3))
	assert.Equal(t, 4*time.Second, s(4))
}
