package tokendata

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana"
)

// DevnetProgramAddress is the address the token-data program was deployed to
// for local and devnet testing.
const DevnetProgramAddress = "2HYuZEeKt7qicGKqM1q1CoLd7r7HGjCo8N5KM7mnF1FS"

// Command is the borsh enum discriminator of a token-data instruction.
type Command uint8

const (
	CommandSetTokenToAccount Command = iota
	CommandSaveTokenByOwner
	CommandWithdrawTokenByOwner
	CommandCheckBalanceToken
)

var ErrInsufficientTokens = errors.New("insufficient tokens")

func (c Command) String() string {
	switch c {
	case CommandSetTokenToAccount:
		return "SetTokenToAccount"
	case CommandSaveTokenByOwner:
		return "SaveTokenByOwner"
	case CommandWithdrawTokenByOwner:
		return "WithdrawTokenByOwner"
	case CommandCheckBalanceToken:
		return "CheckBalanceToken"
	}
	return "Unknown"
}

// SetTokenToAccountData encodes the payload of a SetTokenToAccount instruction.
func SetTokenToAccountData(amount uint32) []byte {
	return encode(CommandSetTokenToAccount, &amount)
}

// SetTokenToAccount overwrites the data account's amount. The admin must sign.
func SetTokenToAccount(program, admin, dataAccount ed25519.PublicKey, amount uint32) solana.Instruction {
	// # Account references
	//   0. [SIGNER] Admin account
	//   1. [WRITE] Data account
	return solana.NewInstruction(
		program,
		SetTokenToAccountData(amount),
		solana.NewReadonlyAccountMeta(admin, true),
		solana.NewAccountMeta(dataAccount, false),
	)
}

// SaveTokenByOwner adds amount to the data account.
func SaveTokenByOwner(program, dataAccount ed25519.PublicKey, amount uint32) solana.Instruction {
	// # Account references
	//   0. [WRITE] Data account
	return solana.NewInstruction(
		program,
		encode(CommandSaveTokenByOwner, &amount),
		solana.NewAccountMeta(dataAccount, false),
	)
}

// WithdrawTokenByOwner subtracts amount from the data account.
func WithdrawTokenByOwner(program, dataAccount ed25519.PublicKey, amount uint32) solana.Instruction {
	// # Account references
	//   0. [WRITE] Data account
	return solana.NewInstruction(
		program,
		encode(CommandWithdrawTokenByOwner, &amount),
		solana.NewAccountMeta(dataAccount, false),
	)
}

// CheckBalanceToken fails unless the data account holds valid TokenData.
func CheckBalanceToken(program, dataAccount ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [] Data account
	return solana.NewInstruction(
		program,
		encode(CommandCheckBalanceToken, nil),
		solana.NewReadonlyAccountMeta(dataAccount, false),
	)
}

type DecodedInstruction struct {
	Command Command
	Amount  uint32
}

// DecodeInstruction parses a token-data instruction payload.
func DecodeInstruction(data []byte) (*DecodedInstruction, error) {
	if len(data) == 0 {
		return nil, solana.ErrIncorrectInstruction
	}

	d := &DecodedInstruction{Command: Command(data[0])}
	switch d.Command {
	case CommandSetTokenToAccount, CommandSaveTokenByOwner, CommandWithdrawTokenByOwner:
		if len(data) != 1+4 {
			return nil, errors.Errorf("invalid instruction data size: %d", len(data))
		}
		d.Amount = binary.LittleEndian.Uint32(data[1:])
	case CommandCheckBalanceToken:
		if len(data) != 1 {
			return nil, errors.Errorf("invalid instruction data size: %d", len(data))
		}
	default:
		return nil, solana.ErrIncorrectInstruction
	}

	return d, nil
}

type DecompiledInstruction struct {
	DecodedInstruction

	Accounts []ed25519.PublicKey
}

func DecompileInstruction(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return nil, solana.ErrIncorrectProgram
	}

	decoded, err := DecodeInstruction(i.Data)
	if err != nil {
		return nil, err
	}

	v := &DecompiledInstruction{DecodedInstruction: *decoded}
	for _, a := range i.Accounts {
		v.Accounts = append(v.Accounts, m.Accounts[a])
	}
	return v, nil
}

// Set overwrites the amount and records the change from admin to account.
func (t *TokenData) Set(amount uint32, admin, account ed25519.PublicKey, timestamp int64) {
	t.Amount = amount
	t.History = append(t.History, ChangeDetail{
		Amount:    amount,
		From:      admin,
		To:        account,
		Timestamp: timestamp,
	})
}

// Save adds amount on behalf of the account.
func (t *TokenData) Save(amount uint32, account ed25519.PublicKey, timestamp int64) error {
	if t.Amount+amount < t.Amount {
		return errors.New("amount overflow")
	}

	t.Amount += amount
	t.History = append(t.History, ChangeDetail{
		Amount:    amount,
		From:      account,
		To:        account,
		Timestamp: timestamp,
	})
	return nil
}

// Withdraw subtracts amount on behalf of the account.
func (t *TokenData) Withdraw(amount uint32, account ed25519.PublicKey, timestamp int64) error {
	if t.Amount < amount {
		return ErrInsufficientTokens
	}

	t.Amount -= amount
	t.History = append(t.History, ChangeDetail{
		Amount:    amount,
		From:      account,
		To:        account,
		Timestamp: timestamp,
	})
	return nil
}

func encode(command Command, amount *uint32) []byte {
	data := []byte{byte(command)}
	if amount != nil {
		data = binary.LittleEndian.AppendUint32(data, *amount)
	}
	return data
}
