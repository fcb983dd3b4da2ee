package provisioner

import (
	"context"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/solana"
)

// Receipt is proof that a transaction reached the configured commitment.
type Receipt struct {
	Signature  solana.Signature
	Slot       uint64
	Commitment solana.Commitment
}

// AccountState is the on-chain state of an account.
type AccountState struct {
	Address    *common.Account
	Owner      *common.Account
	Lamports   uint64
	Data       []byte
	Executable bool
}

// AccountReader reads on-chain account state.
type AccountReader interface {
	// GetAccountState returns ErrAccountNotFound if the account doesn't exist.
	GetAccountState(ctx context.Context, account *common.Account) (*AccountState, error)
}

// Transport is the network boundary of the workflow.
type Transport interface {
	AccountReader

	// GetMinimumRentExemption returns the balance required for an account
	// holding size bytes to be rent exempt.
	GetMinimumRentExemption(ctx context.Context, size uint64) (uint64, error)

	// SubmitAndConfirm signs txn with signers against a fresh blockhash,
	// submits it and blocks until it is confirmed or rejected. A returned
	// ErrTimeout leaves the outcome unknown.
	SubmitAndConfirm(ctx context.Context, txn *solana.Transaction, signers ...*common.Account) (*Receipt, error)

	// RequestTestFunds asks the cluster faucet to credit account.
	RequestTestFunds(ctx context.Context, account *common.Account, lamports uint64) (*Receipt, error)
}
