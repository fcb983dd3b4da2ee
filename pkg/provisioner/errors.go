package provisioner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana"
)

var (
	ErrNoInstructions      = errors.New("no instructions provided")
	ErrTransactionTooLarge = errors.New("transaction exceeds maximum size")
	ErrMissingSigner       = errors.New("missing signer")
	ErrNetwork             = errors.New("network error")
	ErrTimeout             = errors.New("timed out waiting for confirmation")
	ErrRateLimited         = errors.New("test funds request rate limited")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAddressInUse        = errors.New("address already in use")
	ErrVerificationFailed  = errors.New("account verification failed")
	ErrInvalidRequest      = errors.New("invalid provisioning request")
	ErrInvalidConfig       = errors.New("invalid provisioner config")
)

// NetworkError is a transport failure talking to the RPC endpoint. It
// matches ErrNetwork with errors.Is.
type NetworkError struct {
	Method string
	Err    error
}

func newNetworkError(method string, err error) error {
	return &NetworkError{Method: method, Err: err}
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork.Error(), e.Method, e.Err)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RejectedError is a transaction the network refused, either in preflight or
// when it was processed.
type RejectedError struct {
	Reason           string
	TransactionError *solana.TransactionError
}

func newRejectedError(txErr *solana.TransactionError) *RejectedError {
	return &RejectedError{
		Reason:           txErr.Error(),
		TransactionError: txErr,
	}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

// StageError is the cause of a failed run, tagged with the step that was
// being attempted.
type StageError struct {
	Stage State
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// IsAmbiguous reports whether err leaves the outcome of a submitted
// transaction unknown. Callers must check the chain before acting on it.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// FailedStage returns the stage of a *StageError within err's chain.
func FailedStage(err error) (State, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return StateStart, false
}
