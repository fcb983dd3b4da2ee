package memory

import (
	"bytes"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana"
)

// ProgramHandler executes one instruction addressed to a registered program.
// Handlers mutate the Data of writable accounts the program owns. Returning
// a solana.CustomError fails the instruction with that custom code; any other
// error's text is used as the instruction error key.
type ProgramHandler func(invocation *Invocation) error

// Invocation is the view of the chain a ProgramHandler receives.
type Invocation struct {
	Program  ed25519.PublicKey
	Accounts []*InvokedAccount
	Data     []byte
	Slot     uint64
	Time     time.Time
}

type InvokedAccount struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
	Owner      ed25519.PublicKey
	Lamports   uint64
	Data       []byte
}

// NewInstructionError returns an error a ProgramHandler can use to fail with
// one of the builtin instruction errors.
func NewInstructionError(key solana.InstructionErrorKey) error {
	return errors.New(string(key))
}

func (c *Chain) invoke(state *workingSet, m solana.Message, index int, program ed25519.PublicKey, handler ProgramHandler) *solana.TransactionError {
	compiled := m.Instructions[index]

	invocation := &Invocation{
		Program: program,
		Data:    append([]byte(nil), compiled.Data...),
		Slot:    c.slot,
		Time:    c.now(),
	}

	originals := make([]solana.AccountInfo, len(compiled.Accounts))
	for i, accountIndex := range compiled.Accounts {
		key := m.Accounts[accountIndex]
		info, _ := state.load(key)
		originals[i] = info

		invocation.Accounts = append(invocation.Accounts, &InvokedAccount{
			PublicKey:  key,
			IsSigner:   isSigner(m, key),
			IsWritable: isWritable(m, key),
			Owner:      append(ed25519.PublicKey(nil), info.Owner...),
			Lamports:   info.Lamports,
			Data:       append([]byte(nil), info.Data...),
		})
	}

	if err := handler(invocation); err != nil {
		if custom, ok := err.(solana.CustomError); ok {
			return customError(index, custom)
		}
		return fromInstructionError(&solana.InstructionError{Index: index, Err: err})
	}

	for i, account := range invocation.Accounts {
		original := originals[i]

		if !bytes.Equal(account.Owner, original.Owner) {
			return instructionError(index, solana.InstructionErrorModifiedProgramID)
		}
		if account.Lamports != original.Lamports {
			return instructionError(index, solana.InstructionErrorUnbalancedInstruction)
		}
		if bytes.Equal(account.Data, original.Data) {
			continue
		}
		if !account.IsWritable {
			return instructionError(index, solana.InstructionErrorReadonlyDataModified)
		}
		if !bytes.Equal(original.Owner, program) {
			return instructionError(index, solana.InstructionErrorExternalAccountDataModified)
		}
		if len(account.Data) != len(original.Data) {
			return instructionError(index, solana.InstructionErrorAccountDataSizeChanged)
		}

		original.Data = append([]byte(nil), account.Data...)
		state.store(account.PublicKey, original)
	}

	return nil
}

// EchoProgram copies the instruction data into the start of every writable
// account it owns. It fails with AccountDataTooSmall if the data doesn't fit.
func EchoProgram(invocation *Invocation) error {
	for _, account := range invocation.Accounts {
		if !account.IsWritable || !bytes.Equal(account.Owner, invocation.Program) {
			continue
		}
		if len(invocation.Data) > len(account.Data) {
			return NewInstructionError(solana.InstructionErrorAccountDataTooSmall)
		}
		copy(account.Data, invocation.Data)
	}
	return nil
}
