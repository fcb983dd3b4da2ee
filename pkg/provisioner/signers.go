package provisioner

import (
	"bytes"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/solana"
)

// ResolveSigners returns the accounts from available that must sign txn, in
// signature slot order, which puts the fee payer first. It fails with
// ErrMissingSigner if a required signer isn't available or can't sign.
func ResolveSigners(txn *solana.Transaction, available ...*common.Account) ([]*common.Account, error) {
	if txn == nil {
		return nil, errors.New("transaction is nil")
	}

	required := txn.RequiredSigners()
	resolved := make([]*common.Account, 0, len(required))
	for _, publicKey := range required {
		signer := findAccount(available, publicKey)
		if signer == nil {
			return nil, errors.Wrapf(ErrMissingSigner, "%s not provided", base58.Encode(publicKey))
		}
		if !signer.CanSign() {
			return nil, errors.Wrapf(ErrMissingSigner, "%s has no private key", base58.Encode(publicKey))
		}
		resolved = append(resolved, signer)
	}
	return resolved, nil
}

func findAccount(accounts []*common.Account, publicKey []byte) *common.Account {
	for _, account := range accounts {
		if account == nil {
			continue
		}
		if bytes.Equal(account.PublicKey().ToBytes(), publicKey) {
			return account
		}
	}
	return nil
}
