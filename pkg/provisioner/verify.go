package provisioner

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
)

// VerifyAccount reads back the account a completed run created and checks
// that it is owned by the program, holds the expected space and is rent
// exempt. Mismatches are reported as ErrVerificationFailed.
func VerifyAccount(ctx context.Context, reader AccountReader, result *Result) (*AccountState, error) {
	if result == nil || result.DataAccount == nil || result.Program == nil {
		return nil, errors.Wrap(ErrVerificationFailed, "result is incomplete")
	}
	if result.State != StateDone {
		return nil, errors.Wrapf(ErrVerificationFailed, "run ended in state %s", result.State)
	}

	state, err := reader.GetAccountState(ctx, result.DataAccount)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, errors.Wrapf(ErrVerificationFailed, "account %s not found", result.DataAccount.PublicKey().ToBase58())
	} else if err != nil {
		return nil, err
	}

	if !bytes.Equal(state.Owner.PublicKey().ToBytes(), result.Program.PublicKey().ToBytes()) {
		return state, errors.Wrapf(
			ErrVerificationFailed,
			"owner is %s, expected %s",
			state.Owner.PublicKey().ToBase58(),
			result.Program.PublicKey().ToBase58(),
		)
	}
	if uint64(len(state.Data)) != result.Space {
		return state, errors.Wrapf(ErrVerificationFailed, "space is %d, expected %d", len(state.Data), result.Space)
	}
	if state.Lamports < result.RentLamports {
		return state, errors.Wrapf(ErrVerificationFailed, "balance %d is below the rent exempt minimum %d", state.Lamports, result.RentLamports)
	}

	return state, nil
}
