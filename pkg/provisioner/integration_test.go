package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanatest "github.com/code-payments/account-provisioner/pkg/solana/test"
)

// TestSolanaValidator runs the workflow against a solana-test-validator
// container. The cluster's system program refuses CreateAccount at a funded
// address, so the allocate_assign creation mode is used. No program is
// deployed at the target address, so the final instruction is rejected.
func TestSolanaValidator(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping validator test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil || !solanatest.IsDockerAvailable(pool) {
		t.Skip("docker is not available")
	}
	pool.MaxWait = 2 * time.Minute

	client, _, closeFunc, err := solanatest.StartSolanaValidator(pool)
	require.NoError(t, err)
	defer closeFunc()

	ctx := context.Background()
	program := newRandomAccount(t)
	configProvider := withManualTestOverrides(&testOverrides{
		program:      program.PublicKey().ToBase58(),
		pollInterval: 250 * time.Millisecond,
		maxPolls:     240,
		creationMode: CreationModeAllocateAssign,
	})

	transport := NewSolanaTransport(client, configProvider)

	previous, err := transport.GetMinimumRentExemption(ctx, 0)
	require.NoError(t, err)
	for _, size := range []uint64{1, 4, 1024} {
		rent, err := transport.GetMinimumRentExemption(ctx, size)
		require.NoError(t, err)
		assert.True(t, rent >= previous)
		previous = rent
	}

	payer := newRandomAccount(t)
	_, err = transport.RequestTestFunds(ctx, payer, 10_000_000_000)
	require.NoError(t, err)

	p, err := New(transport, configProvider)
	require.NoError(t, err)

	result, err := p.Provision(ctx, &Request{
		Payer:       payer,
		InitialData: []byte{0, 0, 0, 0},
	})
	require.Error(t, err)
	assert.Equal(t, StateInstructionSubmitted, result.FailedStage)

	var rejected *RejectedError
	assert.True(t, errors.As(err, &rejected), "%v", err)

	state, err := transport.GetAccountState(ctx, result.DataAccount)
	require.NoError(t, err)
	assert.EqualValues(t, program.PublicKey().ToBytes(), state.Owner.PublicKey().ToBytes())
	assert.Len(t, state.Data, 4)
	assert.Equal(t, result.RentLamports, state.Lamports)
}
