package common

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/account-provisioner/pkg/solana"
)

func TestAccountWithPublicKey(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var accounts []*Account

	account, err := NewAccountFromPublicKeyBytes(publicKey)
	require.NoError(t, err)
	accounts = append(accounts, account)

	account, err = NewAccountFromPublicKeyString(base58.Encode(publicKey))
	require.NoError(t, err)
	accounts = append(accounts, account)

	for _, account := range accounts {
		assert.EqualValues(t, publicKey, account.PublicKey().ToBytes())
		assert.Nil(t, account.PrivateKey())
		assert.False(t, account.CanSign())
		assert.Equal(t, base58.Encode(publicKey), account.String())

		_, err = account.Sign([]byte("message"))
		assert.Error(t, err)
	}
}

func TestAccountWithPrivateKey(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var accounts []*Account

	account, err := NewAccountFromPrivateKeyBytes(privateKey)
	require.NoError(t, err)
	accounts = append(accounts, account)

	account, err = NewAccountFromPrivateKeyString(base58.Encode(privateKey))
	require.NoError(t, err)
	accounts = append(accounts, account)

	for _, account := range accounts {
		assert.EqualValues(t, publicKey, account.PublicKey().ToBytes())
		assert.EqualValues(t, privateKey, account.PrivateKey().ToBytes())
		assert.True(t, account.CanSign())

		message := []byte("message")
		signature, err := account.Sign(message)
		require.NoError(t, err)
		assert.Equal(t, ed25519.Sign(privateKey, message), signature)
	}
}

func TestInvalidAccount(t *testing.T) {
	stringValue := "invalid-account"
	bytesValue := []byte(stringValue)

	_, err := NewAccountFromPublicKeyBytes(bytesValue)
	assert.Error(t, err)

	_, err = NewAccountFromPublicKeyString(stringValue)
	assert.Error(t, err)

	_, err = NewAccountFromPrivateKeyBytes(bytesValue)
	assert.Error(t, err)

	_, err = NewAccountFromPrivateKeyString(stringValue)
	assert.Error(t, err)

	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = NewAccountFromPrivateKeyBytes(publicKey)
	assert.Error(t, err)

	_, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = NewAccountFromPublicKeyBytes(privateKey)
	assert.Error(t, err)

	var nilAccount *Account
	assert.Error(t, nilAccount.Validate())
}

func TestRandomAccount(t *testing.T) {
	first, err := NewRandomAccount()
	require.NoError(t, err)
	second, err := NewRandomAccount()
	require.NoError(t, err)

	assert.True(t, first.CanSign())
	assert.NoError(t, first.Validate())
	assert.NotEqual(t, first.PublicKey().ToBase58(), second.PublicKey().ToBase58())
}

func TestToSeededAccount(t *testing.T) {
	base, err := NewRandomAccount()
	require.NoError(t, err)
	owner, err := NewRandomAccount()
	require.NoError(t, err)

	seeded, err := base.ToSeededAccount("seed", owner)
	require.NoError(t, err)
	assert.False(t, seeded.CanSign())

	expected, err := solana.CreateWithSeed(base.PublicKey().ToBytes(), "seed", owner.PublicKey().ToBytes())
	require.NoError(t, err)
	assert.EqualValues(t, expected, seeded.PublicKey().ToBytes())

	again, err := base.ToSeededAccount("seed", owner)
	require.NoError(t, err)
	assert.Equal(t, seeded.PublicKey().ToBase58(), again.PublicKey().ToBase58())

	_, err = base.ToSeededAccount("this seed is far too long to be used for derivation", owner)
	assert.Error(t, err)
}
