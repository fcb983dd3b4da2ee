package memory

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/system"
)

func (c *Chain) executeSystem(state *workingSet, m solana.Message, index int) *solana.TransactionError {
	command, err := system.GetCommand(m.Instructions[index].Data)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	switch command {
	case system.CommandTransfer:
		ix, err := system.DecompileTransfer(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.From) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		if !isWritable(m, ix.From) || !isWritable(m, ix.To) {
			return instructionError(index, solana.InstructionErrorReadonlyLamportChange)
		}

		from, _ := state.load(ix.From)
		if len(from.Data) > 0 {
			return instructionError(index, solana.InstructionErrorInvalidArgument)
		}
		if from.Lamports < ix.Lamports {
			return customError(index, system.ErrorResultWithNegativeLamports)
		}
		from.Lamports -= ix.Lamports
		state.store(ix.From, from)

		to, _ := state.load(ix.To)
		to.Lamports += ix.Lamports
		state.store(ix.To, to)
		return nil

	case system.CommandCreateAccount:
		ix, err := system.DecompileCreateAccount(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Funder) || !isSigner(m, ix.Address) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		return c.createAccount(state, m, index, ix.Funder, ix.Address, ix.Lamports, ix.Size, ix.Owner)

	case system.CommandCreateAccountWithSeed:
		ix, err := system.DecompileCreateAccountWithSeed(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Funder) || !isSigner(m, ix.Base) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		if txErr := verifySeededAddress(index, ix.Address, ix.Base, ix.Seed, ix.Owner); txErr != nil {
			return txErr
		}
		return c.createAccount(state, m, index, ix.Funder, ix.Address, ix.Lamports, ix.Size, ix.Owner)

	case system.CommandAllocate:
		ix, err := system.DecompileAllocate(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Address) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		return allocate(state, m, index, ix.Address, ix.Size)

	case system.CommandAllocateWithSeed:
		ix, err := system.DecompileAllocateWithSeed(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Base) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		if txErr := verifySeededAddress(index, ix.Address, ix.Base, ix.Seed, ix.Owner); txErr != nil {
			return txErr
		}
		if txErr := allocate(state, m, index, ix.Address, ix.Size); txErr != nil {
			return txErr
		}
		return assign(state, index, ix.Address, ix.Owner)

	case system.CommandAssign:
		ix, err := system.DecompileAssign(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Address) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		return assign(state, index, ix.Address, ix.Owner)

	case system.CommandAssignWithSeed:
		ix, err := system.DecompileAssignWithSeed(m, index)
		if err != nil {
			return instructionError(index, solana.InstructionErrorInvalidInstructionData)
		}
		if !isSigner(m, ix.Base) {
			return instructionError(index, solana.InstructionErrorMissingRequiredSignature)
		}
		if txErr := verifySeededAddress(index, ix.Address, ix.Base, ix.Seed, ix.Owner); txErr != nil {
			return txErr
		}
		return assign(state, index, ix.Address, ix.Owner)
	}

	return instructionError(index, solana.InstructionErrorInvalidInstructionData)
}

func (c *Chain) createAccount(state *workingSet, m solana.Message, index int, funder, address ed25519.PublicKey, lamports, size uint64, owner ed25519.PublicKey) *solana.TransactionError {
	if !isWritable(m, funder) || !isWritable(m, address) {
		return instructionError(index, solana.InstructionErrorReadonlyLamportChange)
	}

	to, _ := state.load(address)
	if c.strictCreate && to.Lamports > 0 {
		return customError(index, system.ErrorAccountAlreadyInUse)
	}

	if txErr := allocate(state, m, index, address, size); txErr != nil {
		return txErr
	}
	if txErr := assign(state, index, address, owner); txErr != nil {
		return txErr
	}

	from, _ := state.load(funder)
	if from.Lamports < lamports {
		return customError(index, system.ErrorResultWithNegativeLamports)
	}
	from.Lamports -= lamports
	state.store(funder, from)

	to, _ = state.load(address)
	to.Lamports += lamports
	state.store(address, to)

	return nil
}

func allocate(state *workingSet, m solana.Message, index int, address ed25519.PublicKey, size uint64) *solana.TransactionError {
	if !isWritable(m, address) {
		return instructionError(index, solana.InstructionErrorReadonlyDataModified)
	}

	account, _ := state.load(address)
	if len(account.Data) > 0 || !bytes.Equal(account.Owner, system.ProgramKey[:]) {
		return customError(index, system.ErrorAccountAlreadyInUse)
	}
	if size > MaxPermittedDataLength {
		return customError(index, system.ErrorInvalidAccountDataLength)
	}

	account.Data = make([]byte, size)
	state.store(address, account)
	return nil
}

func assign(state *workingSet, index int, address, owner ed25519.PublicKey) *solana.TransactionError {
	account, _ := state.load(address)
	if bytes.Equal(account.Owner, owner) {
		return nil
	}
	if !bytes.Equal(account.Owner, system.ProgramKey[:]) {
		return instructionError(index, solana.InstructionErrorModifiedProgramID)
	}

	account.Owner = append(ed25519.PublicKey(nil), owner...)
	state.store(address, account)
	return nil
}

func verifySeededAddress(index int, address, base ed25519.PublicKey, seed string, owner ed25519.PublicKey) *solana.TransactionError {
	expected, err := solana.CreateWithSeed(base, seed, owner)
	if err == solana.ErrMaxSeedLengthExceeded {
		return customError(index, system.ErrorMaxSeedLengthExceeded)
	} else if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidArgument)
	}

	if !bytes.Equal(expected, address) {
		return customError(index, system.ErrorAddressWithSeedMismatch)
	}
	return nil
}

func isSigner(m solana.Message, account ed25519.PublicKey) bool {
	for i := 0; i < int(m.Header.NumSignatures) && i < len(m.Accounts); i++ {
		if bytes.Equal(m.Accounts[i], account) {
			return true
		}
	}
	return false
}

func isWritable(m solana.Message, account ed25519.PublicKey) bool {
	numSigners := int(m.Header.NumSignatures)
	for i, a := range m.Accounts {
		if !bytes.Equal(a, account) {
			continue
		}

		if i < numSigners {
			return i < numSigners-int(m.Header.NumReadonlySigned)
		}
		return i < len(m.Accounts)-int(m.Header.NumReadOnly)
	}
	return false
}

func instructionError(index int, key solana.InstructionErrorKey) *solana.TransactionError {
	return fromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   errors.New(string(key)),
	})
}

func customError(index int, code solana.CustomError) *solana.TransactionError {
	return fromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   code,
	})
}

func fromInstructionError(ie *solana.InstructionError) *solana.TransactionError {
	return solana.TransactionErrorFromInstructionError(ie)
}
