package memory

import (
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/tokendata"
)

// TokenDataProgram simulates the token-data program. The encoded TokenData
// must fit in the data account; unused trailing bytes are zeroed.
func TokenDataProgram(invocation *Invocation) error {
	instruction, err := tokendata.DecodeInstruction(invocation.Data)
	if err != nil {
		return NewInstructionError(solana.InstructionErrorInvalidInstructionData)
	}

	timestamp := invocation.Time.Unix()

	switch instruction.Command {
	case tokendata.CommandSetTokenToAccount:
		if len(invocation.Accounts) < 2 {
			return NewInstructionError(solana.InstructionErrorNotEnoughAccountKeys)
		}
		admin, account := invocation.Accounts[0], invocation.Accounts[1]
		if !admin.IsSigner {
			return NewInstructionError(solana.InstructionErrorMissingRequiredSignature)
		}
		if !account.IsWritable {
			return NewInstructionError(solana.InstructionErrorInvalidArgument)
		}

		state, err := loadTokenData(account)
		if err != nil {
			return err
		}
		state.Set(instruction.Amount, admin.PublicKey, account.PublicKey, timestamp)
		return storeTokenData(account, state)

	case tokendata.CommandSaveTokenByOwner, tokendata.CommandWithdrawTokenByOwner:
		if len(invocation.Accounts) < 1 {
			return NewInstructionError(solana.InstructionErrorNotEnoughAccountKeys)
		}
		account := invocation.Accounts[0]

		state, err := loadTokenData(account)
		if err != nil {
			return err
		}

		if instruction.Command == tokendata.CommandSaveTokenByOwner {
			err = state.Save(instruction.Amount, account.PublicKey, timestamp)
		} else {
			err = state.Withdraw(instruction.Amount, account.PublicKey, timestamp)
		}
		if err != nil {
			return NewInstructionError(solana.InstructionErrorInvalidArgument)
		}
		return storeTokenData(account, state)

	case tokendata.CommandCheckBalanceToken:
		if len(invocation.Accounts) < 1 {
			return NewInstructionError(solana.InstructionErrorNotEnoughAccountKeys)
		}
		_, err := loadTokenData(invocation.Accounts[0])
		return err
	}

	return NewInstructionError(solana.InstructionErrorInvalidInstructionData)
}

func loadTokenData(account *InvokedAccount) (*tokendata.TokenData, error) {
	if isZeroed(account.Data) {
		return &tokendata.TokenData{}, nil
	}

	state, err := tokendata.UnmarshalTokenData(account.Data)
	if err != nil {
		return nil, NewInstructionError(solana.InstructionErrorInvalidAccountData)
	}
	return state, nil
}

func storeTokenData(account *InvokedAccount, state *tokendata.TokenData) error {
	encoded := state.Marshal()
	if len(encoded) > len(account.Data) {
		return NewInstructionError(solana.InstructionErrorAccountDataTooSmall)
	}

	copy(account.Data, encoded)
	for i := len(encoded); i < len(account.Data); i++ {
		account.Data[i] = 0
	}
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
