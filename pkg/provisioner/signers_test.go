package provisioner

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/system"
)

func TestResolveSigners(t *testing.T) {
	payer := newRandomAccount(t)
	dataAccount := newRandomAccount(t)
	program := newRandomAccount(t)
	unrelated := newRandomAccount(t)

	txn, err := BuildTransaction(payer, system.CreateAccount(
		payer.PublicKey().ToBytes(),
		dataAccount.PublicKey().ToBytes(),
		program.PublicKey().ToBytes(),
		0,
		4,
	))
	require.NoError(t, err)

	// Payer first regardless of the order they're provided in
	signers, err := ResolveSigners(txn, unrelated, dataAccount, nil, payer)
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.Equal(t, payer, signers[0])
	assert.Equal(t, dataAccount, signers[1])

	_, err = ResolveSigners(txn, payer)
	assert.ErrorIs(t, err, ErrMissingSigner)
	assert.Contains(t, err.Error(), dataAccount.PublicKey().ToBase58())

	_, err = ResolveSigners(txn, payer, newPublicAccount(t, dataAccount))
	assert.ErrorIs(t, err, ErrMissingSigner)

	_, err = ResolveSigners(nil, payer)
	assert.Error(t, err)
}

func TestResolveSigners_MessageOrder(t *testing.T) {
	payer := newRandomAccount(t)
	program := newRandomAccount(t)

	var others []*common.Account
	var metas []solana.AccountMeta
	for i := 0; i < 4; i++ {
		account := newRandomAccount(t)
		others = append(others, account)
		metas = append(metas, solana.NewReadonlyAccountMeta(account.PublicKey().ToBytes(), true))
	}

	txn, err := BuildTransaction(payer, solana.NewInstruction(program.PublicKey().ToBytes(), nil, metas...))
	require.NoError(t, err)

	signers, err := ResolveSigners(txn, append(others, payer)...)
	require.NoError(t, err)
	require.Len(t, signers, 5)

	for i, signer := range signers {
		assert.EqualValues(t, txn.RequiredSigners()[i], signer.PublicKey().ToBytes())
	}
	assert.Equal(t, payer, signers[0])

	// The resolved keys fully sign the transaction
	keys := make([]ed25519.PrivateKey, len(signers))
	for i, signer := range signers {
		keys[i] = signer.PrivateKey().ToBytes()
	}
	require.NoError(t, txn.Sign(keys...))
	assert.True(t, txn.IsSigned())
	assert.NoError(t, txn.VerifySignatures())
}
