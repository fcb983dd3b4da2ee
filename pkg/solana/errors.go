package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey is the string key of a transaction error, as reported in
// the "err" field of RPC responses.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

// Transaction errors raised before any instruction runs.
const (
	TransactionErrorAccountInUse            TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountLoadedTwice      TransactionErrorKey = "AccountLoadedTwice"
	TransactionErrorAccountNotFound         TransactionErrorKey = "AccountNotFound"
	TransactionErrorProgramAccountNotFound  TransactionErrorKey = "ProgramAccountNotFound"
	TransactionErrorInsufficientFundsForFee TransactionErrorKey = "InsufficientFundsForFee"
	TransactionErrorDuplicateSignature      TransactionErrorKey = "DuplicateSignature"
	TransactionErrorBlockhashNotFound       TransactionErrorKey = "BlockhashNotFound"
	TransactionErrorMissingSignatureForFee  TransactionErrorKey = "MissingSignatureForFee"
	TransactionErrorInvalidAccountIndex     TransactionErrorKey = "InvalidAccountIndex"
	TransactionErrorSignatureFailure        TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure         TransactionErrorKey = "SanitizeFailure"
)

// TransactionErrorInstructionError wraps an InstructionError. The whole
// transaction is rolled back.
const TransactionErrorInstructionError TransactionErrorKey = "InstructionError"

// InstructionErrorKey is the string key of a builtin instruction error.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorInvalidArgument             InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData      InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData          InstructionErrorKey = "InvalidAccountData"
	InstructionErrorAccountDataTooSmall         InstructionErrorKey = "AccountDataTooSmall"
	InstructionErrorInsufficientFunds           InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID          InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature    InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized   InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorUninitializedAccount        InstructionErrorKey = "UninitializedAccount"
	InstructionErrorUnbalancedInstruction       InstructionErrorKey = "UnbalancedInstruction"
	InstructionErrorModifiedProgramID           InstructionErrorKey = "ModifiedProgramId"
	InstructionErrorExternalAccountDataModified InstructionErrorKey = "ExternalAccountDataModified"
	InstructionErrorReadonlyLamportChange       InstructionErrorKey = "ReadonlyLamportChange"
	InstructionErrorReadonlyDataModified        InstructionErrorKey = "ReadonlyDataModified"
	InstructionErrorNotEnoughAccountKeys        InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorAccountDataSizeChanged      InstructionErrorKey = "AccountDataSizeChanged"

	// InstructionErrorCustom carries a program specific CustomError code.
	InstructionErrorCustom InstructionErrorKey = "Custom"
)

// CustomError is the numeric error code returned by a program.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: %x", int(c))
}

// InstructionError is the failure of the instruction at Index. Err is either a
// CustomError or an error whose text is an InstructionErrorKey.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	switch {
	case i.Err == nil:
		return ""
	case i.CustomError() != nil:
		return InstructionErrorCustom
	}
	return InstructionErrorKey(i.Err.Error())
}

func (i InstructionError) CustomError() *CustomError {
	if ce, ok := i.Err.(CustomError); ok {
		return &ce
	}
	return nil
}

// rawValue is the instruction error in its RPC form: [index, "Key"] or
// [index, {"Custom": code}].
func (i InstructionError) rawValue() []interface{} {
	if ce := i.CustomError(); ce != nil {
		return []interface{}{i.Index, map[string]interface{}{string(InstructionErrorCustom): int(*ce)}}
	}
	return []interface{}{i.Index, string(i.ErrorKey())}
}

// TransactionError is a parsed transaction failure.
type TransactionError struct {
	key         TransactionErrorKey
	instruction *InstructionError
}

// NewTransactionError returns a TransactionError that isn't tied to an
// instruction.
func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{key: key}
}

// TransactionErrorFromInstructionError wraps err as an InstructionError
// transaction failure.
func TransactionErrorFromInstructionError(err *InstructionError) *TransactionError {
	return &TransactionError{
		key:         TransactionErrorInstructionError,
		instruction: err,
	}
}

func (t TransactionError) Error() string {
	if t.instruction != nil {
		return t.instruction.Error()
	}
	return string(t.key)
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instruction
}

// IsCustomInstructionError reports whether the transaction failed in the
// instruction at index with the given custom program error code.
func (t TransactionError) IsCustomInstructionError(index int, code CustomError) bool {
	if t.instruction == nil || t.instruction.Index != index {
		return false
	}

	custom := t.instruction.CustomError()
	return custom != nil && *custom == code
}

// JSONString returns the error in the form the RPC reports it.
func (t TransactionError) JSONString() (string, error) {
	var raw interface{} = string(t.key)
	if t.instruction != nil {
		raw = map[string]interface{}{string(t.key): t.instruction.rawValue()}
	}

	b, err := json.Marshal(raw)
	return string(b), err
}

// ParseRPCError extracts the transaction error from a failed sendTransaction
// call, such as a preflight simulation failure. It returns nil if the RPC
// error doesn't carry one.
func ParseRPCError(err *jsonrpc.RPCError) (*TransactionError, error) {
	if err == nil || err.Data == nil {
		return nil, nil
	}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return nil, errors.New("expected map type")
	}

	if txErr, ok := data["err"]; ok && txErr != nil {
		return ParseTransactionError(txErr)
	}
	return nil, nil
}

// ParseTransactionError parses the decoded JSON value of an "err" field.
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil

	case string:
		return NewTransactionError(TransactionErrorKey(t)), nil

	case map[string]interface{}:
		key, value, err := singleEntry(t)
		if err != nil {
			return nil, errors.Wrap(err, "invalid transaction error")
		}
		if key != string(TransactionErrorInstructionError) {
			return NewTransactionError(TransactionErrorKey(key)), nil
		}

		instruction, err := parseInstructionError(value)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse instruction error")
		}
		return TransactionErrorFromInstructionError(instruction), nil
	}

	return nil, errors.Errorf("unhandled transaction error type %T", raw)
}

func parseInstructionError(v interface{}) (*InstructionError, error) {
	values, ok := v.([]interface{})
	if !ok || len(values) != 2 {
		return nil, errors.Errorf("expected an [index, error] tuple, got %v", v)
	}

	index, err := parseJSONNumber(values[0])
	if err != nil {
		return nil, err
	}

	switch t := values[1].(type) {
	case string:
		return &InstructionError{Index: index, Err: errors.New(t)}, nil

	case map[string]interface{}:
		key, value, err := singleEntry(t)
		if err != nil {
			return nil, err
		}
		if key != string(InstructionErrorCustom) {
			return &InstructionError{Index: index, Err: errors.New(key)}, nil
		}

		code, err := parseJSONNumber(value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid custom error code")
		}
		return &InstructionError{Index: index, Err: CustomError(code)}, nil
	}

	return nil, errors.Errorf("unhandled instruction error type %T", values[1])
}

// singleEntry returns the only entry of an externally tagged enum value.
func singleEntry(m map[string]interface{}) (string, interface{}, error) {
	if len(m) != 1 {
		return "", nil, errors.Errorf("expected a single entry, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func parseJSONNumber(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Errorf("non integer value %v", v)
		}
		return int(i), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, errors.Errorf("non numeric value %v", v)
		}
		return int(i), nil
	}
	return 0, errors.Errorf("non numeric value %v", v)
}
