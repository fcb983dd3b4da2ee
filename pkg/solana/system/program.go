package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana"
)

// ProgramKey is the address of the system program, 11111111111111111111111111111111.
var ProgramKey [32]byte

// Command is the u32 discriminator that prefixes every system instruction.
type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
	CommandCreateAccountWithSeed
	CommandAdvanceNonceAccount
	CommandWithdrawNonceAccount
	CommandInitializeNonceAccount
	CommandAuthorizeNonceAccount
	CommandAllocate
	CommandAllocateWithSeed
	CommandAssignWithSeed
	CommandTransferWithSeed
)

// GetCommand returns the command encoded in a system instruction's data.
func GetCommand(data []byte) (Command, error) {
	if len(data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(binary.LittleEndian.Uint32(data)), nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	//
	// CreateAccount {
	//   // Number of lamports to transfer to the new account
	//   lamports: u64,
	//   // Number of bytes of memory to allocate
	//   space: u64,
	//
	//   //Address of program that will own the new account
	//   owner: Pubkey,
	// }
	//
	data := make([]byte, 4+2*8+32)
	binary.LittleEndian.PutUint32(data, uint32(CommandCreateAccount))
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	i, err := getInstruction(m, index, CommandCreateAccount)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 52 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	v := &DecompiledCreateAccount{
		Funder:  m.Accounts[i.Accounts[0]],
		Address: m.Accounts[i.Accounts[1]],
	}
	v.Lamports = binary.LittleEndian.Uint64(i.Data[4:])
	v.Size = binary.LittleEndian.Uint64(i.Data[4+8:])
	v.Owner = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(v.Owner, i.Data[4+2*8:])

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L80-L84
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data, uint32(CommandTransfer))
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

type DecompiledTransfer struct {
	From     ed25519.PublicKey
	To       ed25519.PublicKey
	Lamports uint64
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	i, err := getInstruction(m, index, CommandTransfer)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 12 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return &DecompiledTransfer{
		From:     m.Accounts[i.Accounts[0]],
		To:       m.Accounts[i.Accounts[1]],
		Lamports: binary.LittleEndian.Uint64(i.Data[4:]),
	}, nil
}

// CreateAccountWithSeed creates an account at the address derived from base,
// seed and owner. Only base signs; the derived address has no private key.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L86-L104
func CreateAccountWithSeed(funder, address, base ed25519.PublicKey, seed string, lamports, size uint64, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Created account
	//   2. [SIGNER] (optional) Base account; if it's the same as the funder
	//      it's deduplicated when the transaction is compiled
	data := make([]byte, 0, 4+32+8+len(seed)+2*8+32)
	data = appendCommand(data, CommandCreateAccountWithSeed)
	data = append(data, base...)
	data = appendSeed(data, seed)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, size)
	data = append(data, owner...)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, false),
		solana.NewReadonlyAccountMeta(base, true),
	)
}

type DecompiledCreateAccountWithSeed struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Base     ed25519.PublicKey
	Seed     string
	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccountWithSeed(m solana.Message, index int) (*DecompiledCreateAccountWithSeed, error) {
	i, err := getInstruction(m, index, CommandCreateAccountWithSeed)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) < 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	r := bytes.NewReader(i.Data[4:])

	v := &DecompiledCreateAccountWithSeed{
		Funder:  m.Accounts[i.Accounts[0]],
		Address: m.Accounts[i.Accounts[1]],
	}
	if v.Base, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid base")
	}
	if v.Seed, err = readSeed(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &v.Lamports); err != nil {
		return nil, errors.Wrap(err, "invalid lamports")
	}
	if err = binary.Read(r, binary.LittleEndian, &v.Size); err != nil {
		return nil, errors.Wrap(err, "invalid size")
	}
	if v.Owner, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L74-L78
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Assigned account public key
	data := make([]byte, 0, 4+32)
	data = appendCommand(data, CommandAssign)
	data = append(data, owner...)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAssign struct {
	Address ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileAssign(m solana.Message, index int) (*DecompiledAssign, error) {
	i, err := getInstruction(m, index, CommandAssign)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 4+32 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	v := &DecompiledAssign{
		Address: m.Accounts[i.Accounts[0]],
		Owner:   make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, i.Data[4:])
	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L156-L163
func Allocate(address ed25519.PublicKey, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] New account
	data := make([]byte, 0, 4+8)
	data = appendCommand(data, CommandAllocate)
	data = binary.LittleEndian.AppendUint64(data, size)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAllocate struct {
	Address ed25519.PublicKey
	Size    uint64
}

func DecompileAllocate(m solana.Message, index int) (*DecompiledAllocate, error) {
	i, err := getInstruction(m, index, CommandAllocate)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 4+8 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return &DecompiledAllocate{
		Address: m.Accounts[i.Accounts[0]],
		Size:    binary.LittleEndian.Uint64(i.Data[4:]),
	}, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L165-L180
func AllocateWithSeed(address, base ed25519.PublicKey, seed string, size uint64, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE] Allocated account
	//   1. [SIGNER] Base account
	data := make([]byte, 0, 4+32+8+len(seed)+8+32)
	data = appendCommand(data, CommandAllocateWithSeed)
	data = append(data, base...)
	data = appendSeed(data, seed)
	data = binary.LittleEndian.AppendUint64(data, size)
	data = append(data, owner...)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, false),
		solana.NewReadonlyAccountMeta(base, true),
	)
}

type DecompiledAllocateWithSeed struct {
	Address ed25519.PublicKey
	Base    ed25519.PublicKey
	Seed    string
	Size    uint64
	Owner   ed25519.PublicKey
}

func DecompileAllocateWithSeed(m solana.Message, index int) (*DecompiledAllocateWithSeed, error) {
	i, err := getInstruction(m, index, CommandAllocateWithSeed)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	r := bytes.NewReader(i.Data[4:])

	v := &DecompiledAllocateWithSeed{
		Address: m.Accounts[i.Accounts[0]],
	}
	if v.Base, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid base")
	}
	if v.Seed, err = readSeed(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &v.Size); err != nil {
		return nil, errors.Wrap(err, "invalid size")
	}
	if v.Owner, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L182-L192
func AssignWithSeed(address, base ed25519.PublicKey, seed string, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE] Assigned account
	//   1. [SIGNER] Base account
	data := make([]byte, 0, 4+32+8+len(seed)+32)
	data = appendCommand(data, CommandAssignWithSeed)
	data = append(data, base...)
	data = appendSeed(data, seed)
	data = append(data, owner...)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, false),
		solana.NewReadonlyAccountMeta(base, true),
	)
}

type DecompiledAssignWithSeed struct {
	Address ed25519.PublicKey
	Base    ed25519.PublicKey
	Seed    string
	Owner   ed25519.PublicKey
}

func DecompileAssignWithSeed(m solana.Message, index int) (*DecompiledAssignWithSeed, error) {
	i, err := getInstruction(m, index, CommandAssignWithSeed)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	r := bytes.NewReader(i.Data[4:])

	v := &DecompiledAssignWithSeed{
		Address: m.Accounts[i.Accounts[0]],
	}
	if v.Base, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid base")
	}
	if v.Seed, err = readSeed(r); err != nil {
		return nil, err
	}
	if v.Owner, err = readPublicKey(r); err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return v, nil
}

func getInstruction(m solana.Message, index int, command Command) (solana.CompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return solana.CompiledInstruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(command))
	i := m.Instructions[index]

	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey[:]) {
		return i, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(i.Data, prefix[:]) {
		return i, solana.ErrIncorrectInstruction
	}

	return i, nil
}

func appendCommand(data []byte, command Command) []byte {
	return binary.LittleEndian.AppendUint32(data, uint32(command))
}

// Seeds are encoded as a u64 length followed by the raw bytes.
func appendSeed(data []byte, seed string) []byte {
	data = binary.LittleEndian.AppendUint64(data, uint64(len(seed)))
	return append(data, seed...)
}

func readSeed(r *bytes.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", errors.Wrap(err, "invalid seed length")
	}
	if length > solana.MaxSeedLength || length > uint64(r.Len()) {
		return "", errors.Errorf("invalid seed length: %d", length)
	}

	seed := make([]byte, length)
	if _, err := io.ReadFull(r, seed); err != nil {
		return "", errors.Wrap(err, "invalid seed")
	}
	return string(seed), nil
}

func readPublicKey(r *bytes.Reader) (ed25519.PublicKey, error) {
	if r.Len() < ed25519.PublicKeySize {
		return nil, errors.New("short read")
	}

	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
