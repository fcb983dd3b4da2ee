package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"math/rand"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/account-provisioner/pkg/retry"
	"github.com/code-payments/account-provisioner/pkg/retry/backoff"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005
	rpcInvalidParamsCode = -32602
	rpcRateLimitedCode   = 429

	maxCallAttempts = 3

	// Blockhashes are reused for blockhashTTL, jittered by up to 20% either
	// way so that callers sharing a node don't refresh in lockstep.
	blockhashTTL    = 2 * time.Second
	blockhashJitter = 0.2
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrNoBalance         = errors.New("no balance")
	ErrInvalidCommitment = errors.New("invalid commitment")
)

// ParseCommitment parses one of processed, confirmed or finalized.
func ParseCommitment(value string) (Commitment, error) {
	switch value {
	case confirmationStatusProcessed:
		return CommitmentProcessed, nil
	case confirmationStatusConfirmed:
		return CommitmentConfirmed, nil
	case confirmationStatusFinalized:
		return CommitmentFinalized, nil
	}
	return Commitment{}, ErrInvalidCommitment
}

// AccountInfo contains the Solana account information
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}

	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}

	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Satisfies reports whether the status has reached the provided commitment.
func (s SignatureStatus) Satisfies(commitment Commitment) bool {
	switch commitment {
	case CommitmentProcessed:
		return true
	case CommitmentConfirmed:
		return s.Confirmed()
	case CommitmentFinalized:
		return s.Finalized()
	}
	return false
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetLatestBlockhash() (Blockhash, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}


var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

type client struct {
	log     *logrus.Entry
	rpc     jsonrpc.RPCClient
	retrier retry.Retrier

	blockhashes blockhashCache
}

// New returns a Client for the JSON-RPC endpoint. Rate limited and unhealthy
// node responses are retried with jittered exponential backoff.
func New(endpoint string) Client {
	return &client{
		log: logrus.StandardLogger().WithField("type", "solana/client"),
		rpc: jsonrpc.NewClient(endpoint),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(maxCallAttempts),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
	}
}

// call invokes method and decodes its result into out. Errors that are not
// retried are returned unchanged, so callers can inspect *jsonrpc.RPCError.
func (c *client) call(out interface{}, method string, params ...interface{}) error {
	_, err := c.retrier.Retry(context.Background(), func() error {
		return c.classify(method, c.rpc.CallFor(out, method, params...))
	})
	return err
}

func (c *client) classify(method string, err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	switch {
	case !ok:
		return err
	case rpcErr.Code == rpcRateLimitedCode:
		c.log.WithField("method", method).Warn("rate limited by rpc node")
		return errRateLimited
	case rpcErr.Code >= 500 || rpcErr.Code == rpcNodeUnhealthyCode:
		return errServiceError
	}
	return err
}

func callFailed(method string, err error) error {
	return errors.Wrapf(err, "%s() failed", method)
}

func (c *client) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	var lamports uint64
	if err := c.call(&lamports, "getMinimumBalanceForRentExemption", size); err != nil {
		return 0, callFailed("getMinimumBalanceForRentExemption", err)
	}
	return lamports, nil
}

func (c *client) GetLatestBlockhash() (Blockhash, error) {
	if hash, ok := c.blockhashes.get(); ok {
		return hash, nil
	}

	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(&resp, "getLatestBlockhash"); err != nil {
		return Blockhash{}, callFailed("getLatestBlockhash", err)
	}

	var hash Blockhash
	raw, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(raw) != len(hash) {
		return Blockhash{}, errors.Errorf("invalid blockhash in response: %q", resp.Value.Blockhash)
	}
	copy(hash[:], raw)

	c.blockhashes.set(hash)
	return hash, nil
}

func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp struct {
		Value *uint64 `json:"value"`
	}

	err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed)
	if rpcErr, ok := err.(*jsonrpc.RPCError); ok && rpcErr.Code == rpcInvalidParamsCode {
		return 0, ErrNoBalance
	} else if err != nil {
		return 0, callFailed("getBalance", err)
	}

	if resp.Value == nil {
		return 0, errors.New("missing balance in response")
	}
	return *resp.Value, nil
}

// SubmitTransaction submits the signed transaction. Transactions rejected
// during preflight are returned as a *TransactionError.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	if len(txn.Signatures) == 0 {
		return Signature{}, errors.New("transaction has no signatures")
	}
	sig := txn.Signatures[0]

	opts := struct {
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		PreflightCommitment: commitment.Commitment,
	}

	var ignored string
	err := c.call(&ignored, "sendTransaction", base58.Encode(txn.Marshal()), opts)
	if err == nil {
		return sig, nil
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, callFailed("sendTransaction", err)
	}

	txErr, parseErr := ParseRPCError(rpcErr)
	if parseErr != nil || txErr == nil {
		return sig, err
	}

	c.log.WithFields(logrus.Fields{
		"method":    "SubmitTransaction",
		"signature": sig.ToBase58(),
	}).WithError(txErr).Debug("transaction rejected in preflight")
	return sig, txErr
}

type accountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [payload, encoding]
	Executable bool     `json:"executable"`
}

func (v accountInfoValue) decode() (AccountInfo, error) {
	owner, err := base58.Decode(v.Owner)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid owner in response")
	}

	var data []byte
	if len(v.Data) > 0 {
		if data, err = base64.StdEncoding.DecodeString(v.Data[0]); err != nil {
			return AccountInfo{}, errors.Wrap(err, "invalid account data in response")
		}
	}

	return AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   v.Lamports,
		Executable: v.Executable,
	}, nil
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (AccountInfo, error) {
	opts := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp struct {
		Value *accountInfoValue `json:"value"`
	}
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), opts); err != nil {
		return AccountInfo{}, callFailed("getAccountInfo", err)
	}
	if resp.Value == nil {
		return AccountInfo{}, ErrNoAccountInfo
	}
	return resp.Value.decode()
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var encoded string
	if err := c.call(&encoded, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, callFailed("requestAirdrop", err)
	}

	var sig Signature
	raw, err := base58.Decode(encoded)
	if err != nil || len(raw) != len(sig) {
		return Signature{}, errors.Errorf("invalid signature in response: %q", encoded)
	}
	copy(sig[:], raw)
	return sig, nil
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.ToBase58()
	}

	opts := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	var resp struct {
		Value []*struct {
			Slot               uint64      `json:"slot"`
			Confirmations      *int        `json:"confirmations"`
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		} `json:"value"`
	}
	if err := c.call(&resp, "getSignatureStatuses", encoded, opts); err != nil {
		return nil, callFailed("getSignatureStatuses", err)
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if v == nil || i >= len(statuses) {
			continue
		}

		txErr, err := ParseTransactionError(v.Err)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid status for %s", encoded[i])
		}

		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			ErrorResult:        txErr,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}
	}
	return statuses, nil
}

// blockhashCache holds the last fetched blockhash until it expires.
type blockhashCache struct {
	mu      sync.RWMutex
	hash    Blockhash
	expires time.Time
}

func (b *blockhashCache) get() (Blockhash, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.hash == (Blockhash{}) || time.Now().After(b.expires) {
		return Blockhash{}, false
	}
	return b.hash, true
}

func (b *blockhashCache) set(hash Blockhash) {
	ttl := time.Duration(float64(blockhashTTL) * (1 + (rand.Float64()*2-1)*blockhashJitter))

	b.mu.Lock()
	defer b.mu.Unlock()

	b.hash = hash
	b.expires = time.Now().Add(ttl)
}
