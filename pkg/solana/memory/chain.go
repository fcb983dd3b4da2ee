package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/system"
)

const (
	// DefaultLamportsPerSignature matches the fee charged by mainnet-beta.
	DefaultLamportsPerSignature = 5000

	// Rent parameters of the default cluster configuration.
	//
	// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/rent.rs
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionThreshold     = 2

	// MaxPermittedDataLength is the largest account the system program will allocate.
	MaxPermittedDataLength = 10 * 1024 * 1024

	maxRecentBlockhashes = 150
)

// MinimumBalanceForRentExemption returns the lamports required for an
// account holding size bytes of data to be rent exempt.
func MinimumBalanceForRentExemption(size uint64) uint64 {
	return (AccountStorageOverhead + size) * LamportsPerByteYear * ExemptionThreshold
}

// SubmitHook is invoked before a submitted transaction is processed. A
// non-nil error is returned to the submitter and the transaction is dropped.
type SubmitHook func(txn solana.Transaction) error

// Chain is an in-memory, single-node Solana cluster. Transactions are
// processed atomically at submission and are immediately finalized.
type Chain struct {
	log *logrus.Entry

	mu                   sync.Mutex
	now                  func() time.Time
	lamportsPerSignature uint64
	strictCreate         bool
	withhold             bool
	submitHook           SubmitHook

	slot      uint64
	blockhash []solana.Blockhash
	accounts  map[string]solana.AccountInfo
	statuses  map[solana.Signature]*solana.SignatureStatus
	programs  map[string]ProgramHandler
	processed []solana.Transaction
}

// NewChain returns an empty chain with a single recent blockhash.
func NewChain() *Chain {
	c := &Chain{
		log:                  logrus.StandardLogger().WithField("type", "solana/memory"),
		now:                  time.Now,
		lamportsPerSignature: DefaultLamportsPerSignature,
		accounts:             make(map[string]solana.AccountInfo),
		statuses:             make(map[solana.Signature]*solana.SignatureStatus),
		programs:             make(map[string]ProgramHandler),
	}
	c.advance()
	return c
}

// RegisterProgram deploys handler at the program address.
func (c *Chain) RegisterProgram(program ed25519.PublicKey, handler ProgramHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.programs[string(program)] = handler
	c.accounts[string(program)] = solana.AccountInfo{
		Owner:      loaderKey,
		Lamports:   MinimumBalanceForRentExemption(0),
		Executable: true,
	}
}

// SetSubmitHook installs a hook that runs before every submission.
func (c *Chain) SetSubmitHook(hook SubmitHook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submitHook = hook
}

// SetStrictCreate makes CreateAccount and CreateAccountWithSeed reject
// addresses that already hold lamports, as mainnet-beta does.
func (c *Chain) SetStrictCreate(strict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.strictCreate = strict
}

// WithholdConfirmations hides the status of transactions processed while
// enabled, simulating a cluster that never confirms them.
func (c *Chain) WithholdConfirmations(withhold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.withhold = withhold
}

// SetLamportsPerSignature overrides the fee charged per required signature.
func (c *Chain) SetLamportsPerSignature(lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lamportsPerSignature = lamports
}

// SetClock overrides the time reported to program handlers.
func (c *Chain) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
}

// SetBalance overwrites the lamports held by a system-owned account.
func (c *Chain) SetBalance(account ed25519.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := c.accounts[string(account)]
	if info.Owner == nil {
		info.Owner = system.ProgramKey[:]
	}
	info.Lamports = lamports
	c.store(account, info)
}

// Account returns a copy of the account state, if the account exists.
func (c *Chain) Account(account ed25519.PublicKey) (solana.AccountInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.accounts[string(account)]
	return cloneAccount(info), ok
}

// Processed returns the transactions that have landed, in order.
func (c *Chain) Processed() []solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]solana.Transaction(nil), c.processed...)
}

// Slot returns the current slot.
func (c *Chain) Slot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.slot
}

func (c *Chain) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return cloneAccount(info), nil
}

func (c *Chain) GetBalance(account ed25519.PublicKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.accounts[string(account)].Lamports, nil
}

func (c *Chain) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return MinimumBalanceForRentExemption(size), nil
}

func (c *Chain) GetLatestBlockhash() (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockhash[len(c.blockhash)-1], nil
}

func (c *Chain) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if status, ok := c.statuses[sig]; ok {
			copied := *status
			statuses[i] = &copied
		}
	}
	return statuses, nil
}

func (c *Chain) RequestAirdrop(account ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return sig, errors.Wrap(err, "failed to generate signature")
	}

	info := c.accounts[string(account)]
	if info.Owner == nil {
		info.Owner = system.ProgramKey[:]
	}
	info.Lamports += lamports
	c.store(account, info)

	c.advance()
	c.recordStatus(sig)

	c.log.WithFields(logrus.Fields{
		"method":    "RequestAirdrop",
		"account":   base58.Encode(account),
		"lamports":  lamports,
		"signature": sig.ToBase58(),
	}).Debug("airdrop processed")

	return sig, nil
}

// SubmitTransaction processes the transaction atomically. Transactions that
// fail are rejected without landing, as a preflight check would reject them.
func (c *Chain) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sig solana.Signature
	if len(txn.Signatures) > 0 {
		sig = txn.Signatures[0]
	}

	log := c.log.WithFields(logrus.Fields{
		"method":    "SubmitTransaction",
		"signature": sig.ToBase58(),
	})

	if c.submitHook != nil {
		if err := c.submitHook(txn); err != nil {
			log.WithError(err).Debug("transaction dropped by submit hook")
			return sig, err
		}
	}

	if txErr := c.sanitize(txn); txErr != nil {
		log.WithError(txErr).Debug("transaction failed sanitization")
		return sig, txErr
	}

	if _, ok := c.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}

	state := newWorkingSet(c.accounts)

	payer := txn.Message.Accounts[0]
	fee := c.lamportsPerSignature * uint64(txn.Message.Header.NumSignatures)
	payerInfo, ok := state.load(payer)
	if !ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
	}
	if payerInfo.Lamports < fee {
		return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}
	payerInfo.Lamports -= fee
	state.store(payer, payerInfo)

	for i := range txn.Message.Instructions {
		if txErr := c.execute(state, txn.Message, i); txErr != nil {
			log.WithError(txErr).Debug("transaction failed execution")
			return sig, txErr
		}
	}

	for key, info := range state.dirty {
		c.store(ed25519.PublicKey(key), info)
	}

	c.advance()
	c.processed = append(c.processed, txn)
	c.recordStatus(sig)

	log.WithField("slot", c.slot).Debug("transaction processed")

	return sig, nil
}

func (c *Chain) sanitize(txn solana.Transaction) *solana.TransactionError {
	m := txn.Message

	if m.Header.NumSignatures == 0 || len(m.Accounts) == 0 {
		return solana.NewTransactionError(solana.TransactionErrorMissingSignatureForFee)
	}
	if int(m.Header.NumSignatures)+int(m.Header.NumReadOnly) > len(m.Accounts) {
		return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}

	seen := make(map[string]struct{}, len(m.Accounts))
	for _, a := range m.Accounts {
		if _, ok := seen[string(a)]; ok {
			return solana.NewTransactionError(solana.TransactionErrorAccountLoadedTwice)
		}
		seen[string(a)] = struct{}{}
	}

	for _, i := range m.Instructions {
		if int(i.ProgramIndex) >= len(m.Accounts) {
			return solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
		}
		for _, a := range i.Accounts {
			if int(a) >= len(m.Accounts) {
				return solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
			}
		}
	}

	if err := txn.VerifySignatures(); err != nil {
		return solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	for _, bh := range c.blockhash {
		if bh == m.RecentBlockhash {
			return nil
		}
	}
	return solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
}

func (c *Chain) execute(state *workingSet, m solana.Message, index int) *solana.TransactionError {
	program := m.Accounts[m.Instructions[index].ProgramIndex]

	if bytes.Equal(program, system.ProgramKey[:]) {
		return c.executeSystem(state, m, index)
	}

	handler, ok := c.programs[string(program)]
	if !ok {
		return solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
	}
	return c.invoke(state, m, index, program, handler)
}

func (c *Chain) advance() {
	c.slot++

	h := sha256.New()
	if len(c.blockhash) > 0 {
		last := c.blockhash[len(c.blockhash)-1]
		h.Write(last[:])
	}
	var slot [8]byte
	for i := range slot {
		slot[i] = byte(c.slot >> (8 * i))
	}
	h.Write(slot[:])

	var bh solana.Blockhash
	copy(bh[:], h.Sum(nil))

	c.blockhash = append(c.blockhash, bh)
	if len(c.blockhash) > maxRecentBlockhashes {
		c.blockhash = c.blockhash[1:]
	}
}

func (c *Chain) recordStatus(sig solana.Signature) {
	if c.withhold {
		return
	}

	c.statuses[sig] = &solana.SignatureStatus{
		Slot:               c.slot,
		ConfirmationStatus: "finalized",
	}
}

func (c *Chain) store(account ed25519.PublicKey, info solana.AccountInfo) {
	if info.Lamports == 0 && len(info.Data) == 0 && !info.Executable {
		delete(c.accounts, string(account))
		return
	}
	c.accounts[string(account)] = info
}

func cloneAccount(info solana.AccountInfo) solana.AccountInfo {
	clone := info
	if info.Data != nil {
		clone.Data = append([]byte(nil), info.Data...)
	}
	if info.Owner != nil {
		clone.Owner = append(ed25519.PublicKey(nil), info.Owner...)
	}
	return clone
}

// workingSet buffers account changes made while a transaction executes.
type workingSet struct {
	committed map[string]solana.AccountInfo
	dirty     map[string]solana.AccountInfo
}

func newWorkingSet(committed map[string]solana.AccountInfo) *workingSet {
	return &workingSet{
		committed: committed,
		dirty:     make(map[string]solana.AccountInfo),
	}
}

// load returns a copy of the account. Missing accounts are returned as
// empty system-owned accounts.
func (w *workingSet) load(account ed25519.PublicKey) (solana.AccountInfo, bool) {
	if info, ok := w.dirty[string(account)]; ok {
		return cloneAccount(info), true
	}
	if info, ok := w.committed[string(account)]; ok {
		return cloneAccount(info), true
	}
	return solana.AccountInfo{Owner: system.ProgramKey[:]}, false
}

func (w *workingSet) store(account ed25519.PublicKey, info solana.AccountInfo) {
	w.dirty[string(account)] = info
}

var loaderKey = func() ed25519.PublicKey {
	key, err := base58.Decode("BPFLoaderUpgradeab1e11111111111111111111111")
	if err != nil {
		panic(err)
	}
	return key
}()
