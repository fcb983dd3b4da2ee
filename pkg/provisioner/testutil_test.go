package provisioner

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/memory"
)

const initialBalance = 10_000_000_000

type testEnv struct {
	ctx         context.Context
	chain       *memory.Chain
	transport   Transport
	provisioner *Provisioner
	payer       *common.Account
	program     *common.Account
}

func setup(t *testing.T, overrides *testOverrides) *testEnv {
	return setupWithHandler(t, overrides, memory.EchoProgram)
}

func setupWithHandler(t *testing.T, overrides *testOverrides, handler memory.ProgramHandler) *testEnv {
	if overrides == nil {
		overrides = &testOverrides{}
	}

	program := newRandomAccount(t)
	if overrides.program == "" {
		overrides.program = program.PublicKey().ToBase58()
	} else {
		program = newAccountFromString(t, overrides.program)
	}

	chain := memory.NewChain()
	chain.RegisterProgram(program.PublicKey().ToBytes(), handler)

	payer := newRandomAccount(t)
	chain.SetBalance(payer.PublicKey().ToBytes(), initialBalance)

	configProvider := withManualTestOverrides(overrides)
	transport := NewSolanaTransport(chain, configProvider)

	p, err := New(transport, configProvider)
	require.NoError(t, err)

	return &testEnv{
		ctx:         context.Background(),
		chain:       chain,
		transport:   transport,
		provisioner: p,
		payer:       payer,
		program:     program,
	}
}

func (e *testEnv) request(initialData []byte) *Request {
	return &Request{
		Payer:       e.payer,
		InitialData: initialData,
	}
}

func (e *testEnv) account(t *testing.T, account *common.Account) solana.AccountInfo {
	info, ok := e.chain.Account(account.PublicKey().ToBytes())
	require.True(t, ok, "account %s doesn't exist", account.PublicKey().ToBase58())
	return info
}

func (e *testEnv) balance(t *testing.T, account *common.Account) uint64 {
	balance, err := e.chain.GetBalance(account.PublicKey().ToBytes())
	require.NoError(t, err)
	return balance
}

// isProgramTransaction reports whether txn invokes program.
func isProgramTransaction(txn solana.Transaction, program *common.Account) bool {
	for _, ix := range txn.Message.Instructions {
		if string(txn.Message.Accounts[ix.ProgramIndex]) == string(program.PublicKey().ToBytes()) {
			return true
		}
	}
	return false
}

func newRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)
	return account
}

func newAccountFromString(t *testing.T, value string) *common.Account {
	account, err := common.NewAccountFromPublicKeyString(value)
	require.NoError(t, err)
	return account
}

func newPublicAccount(t *testing.T, account *common.Account) *common.Account {
	public, err := common.NewAccountFromPublicKey(account.PublicKey())
	require.NoError(t, err)
	return public
}

// fakeClient overrides individual solana.Client methods.
type fakeClient struct {
	solana.Client

	getLatestBlockhash   func() (solana.Blockhash, error)
	getSignatureStatuses func([]solana.Signature) ([]*solana.SignatureStatus, error)
	getRent              func(uint64) (uint64, error)
	getAccountInfo       func() (solana.AccountInfo, error)
}

func (c *fakeClient) GetLatestBlockhash() (solana.Blockhash, error) {
	if c.getLatestBlockhash != nil {
		return c.getLatestBlockhash()
	}
	return c.Client.GetLatestBlockhash()
}

func (c *fakeClient) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	if c.getSignatureStatuses != nil {
		return c.getSignatureStatuses(sigs)
	}
	return c.Client.GetSignatureStatuses(sigs)
}

func (c *fakeClient) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	if c.getRent != nil {
		return c.getRent(size)
	}
	return c.Client.GetMinimumBalanceForRentExemption(size)
}

func (c *fakeClient) GetAccountInfo(account ed25519.PublicKey, commitment solana.Commitment) (solana.AccountInfo, error) {
	if c.getAccountInfo != nil {
		return c.getAccountInfo()
	}
	return c.Client.GetAccountInfo(account, commitment)
}
