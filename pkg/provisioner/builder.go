package provisioner

import (
	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/system"
)

// BuildTransaction compiles instructions, in order, into one unsigned
// transaction with payer as the fee payer.
func BuildTransaction(payer *common.Account, instructions ...solana.Instruction) (*solana.Transaction, error) {
	if payer == nil {
		return nil, errors.New("payer is required")
	}
	if err := payer.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid payer")
	}
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	txn := solana.NewTransaction(payer.PublicKey().ToBytes(), instructions...)
	if size := len(txn.Marshal()); size > solana.MaxTransactionSize {
		return nil, errors.Wrapf(ErrTransactionTooLarge, "%d bytes", size)
	}
	return &txn, nil
}

func fundInstructions(payer, dataAccount *common.Account, lamports uint64) []solana.Instruction {
	return []solana.Instruction{
		system.Transfer(
			payer.PublicKey().ToBytes(),
			dataAccount.PublicKey().ToBytes(),
			lamports,
		),
	}
}

// createInstructions returns the instructions that allocate space bytes at
// the data account and assign it to program. The address is expected to be
// funded already.
func createInstructions(s *settings, payer, dataAccount *common.Account, seed string, space uint64) []solana.Instruction {
	funder := payer.PublicKey().ToBytes()
	address := dataAccount.PublicKey().ToBytes()
	owner := s.program.PublicKey().ToBytes()

	switch {
	case s.strategy == AddressStrategySeeded && s.mode == CreationModeAllocateAssign:
		return []solana.Instruction{
			system.AllocateWithSeed(address, funder, seed, space, owner),
			system.AssignWithSeed(address, funder, seed, owner),
		}
	case s.strategy == AddressStrategySeeded:
		return []solana.Instruction{
			system.CreateAccountWithSeed(funder, address, funder, seed, 0, space, owner),
		}
	case s.mode == CreationModeAllocateAssign:
		return []solana.Instruction{
			system.Allocate(address, space),
			system.Assign(address, owner),
		}
	default:
		return []solana.Instruction{
			system.CreateAccount(funder, address, owner, 0, space),
		}
	}
}

func programInstructions(program, payer, dataAccount *common.Account, data []byte) []solana.Instruction {
	return []solana.Instruction{
		solana.NewInstruction(
			program.PublicKey().ToBytes(),
			data,
			solana.NewReadonlyAccountMeta(payer.PublicKey().ToBytes(), true),
			solana.NewAccountMeta(dataAccount.PublicKey().ToBytes(), false),
		),
	}
}
