package provisioner

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/metrics"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/system"
	sync_util "github.com/code-payments/account-provisioner/pkg/sync"
)

const (
	metricsStructName = "provisioner.Provisioner"

	runEventName         = "ProvisioningRun"
	runDurationMetric    = "Provisioner.Run.Duration"
	stepDurationMetric   = "Provisioner.Step.Duration"
	failedRunCountMetric = "Provisioner.Run.Failed"

	addressLockStripes = 64

	// maxAccountDataLength is the largest allocation the system program permits.
	maxAccountDataLength = 10 * 1024 * 1024
)

// Request describes one provisioning run.
type Request struct {
	// Payer funds the account and signs the transfer and program instruction.
	Payer *common.Account

	// InitialData sizes the account. Only its length is used.
	InitialData []byte

	// InstructionData is the payload of the program instruction. It defaults
	// to InitialData when nil.
	InstructionData []byte

	// Seed derives the address under the seeded address strategy.
	Seed string
}

// Result describes a run, whether it completed or not. On failure it still
// carries the data account address and the receipts of the steps that landed,
// so stranded funds can be recovered.
type Result struct {
	RunID string

	State       State
	FailedStage State
	Err         error

	Strategy AddressStrategy
	Mode     CreationMode

	Payer       *common.Account
	DataAccount *common.Account
	Program     *common.Account

	RentLamports uint64
	Space        uint64

	Receipts    map[State]*Receipt
	Skipped     []State
	Transitions []Transition

	StartedAt time.Time
	Duration  time.Duration
}

// Provisioner runs the provisioning workflow. Runs are independent and share
// no mutable state, so a Provisioner can be used concurrently.
type Provisioner struct {
	log       *logrus.Entry
	conf      *conf
	transport Transport
	now       func() time.Time

	// addressLocks serializes seeded runs that target the same address.
	addressLocks *sync_util.StripedLock
}

// New returns a Provisioner that submits through transport.
func New(transport Transport, configProvider ConfigProvider) (*Provisioner, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if configProvider == nil {
		return nil, errors.New("config provider is required")
	}

	return &Provisioner{
		log:       logrus.StandardLogger().WithField("type", "provisioner/workflow"),
		conf:      configProvider(),
		transport: transport,
		now:       time.Now,

		addressLocks: sync_util.NewStripedLock(addressLockStripes),
	}, nil
}

type step struct {
	target  State
	execute func(r *run, ctx context.Context) error
}

var steps = []step{
	{target: StateRentQueried, execute: (*run).queryRent},
	{target: StateFunded, execute: (*run).fund},
	{target: StateAccountCreated, execute: (*run).create},
	{target: StateInstructionSubmitted, execute: (*run).invoke},
}

type run struct {
	p        *Provisioner
	log      *logrus.Entry
	req      *Request
	settings *settings
	result   *Result
}

// Provision runs the workflow to completion. Each step is a separate
// transaction that must confirm before the next one starts. On failure the
// returned error is a *StageError and the Result is still returned.
//
// Cancelling ctx stops the run before the next step. A step that has
// started always runs to completion.
func (p *Provisioner) Provision(ctx context.Context, req *Request) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Provision")
	defer tracer.End()

	r, err := p.newRun(ctx, req)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	tracer.AddAttributes(map[string]interface{}{
		"run":          r.result.RunID,
		"data_account": r.result.DataAccount.PublicKey().ToBase58(),
	})

	if r.settings.strategy == AddressStrategySeeded {
		unlock := p.addressLocks.Lock(r.result.DataAccount.PublicKey().ToBytes())
		defer unlock()
	}

	err = r.execute(ctx)
	r.result.Duration = p.now().Sub(r.result.StartedAt)
	r.record(ctx)

	if err != nil {
		tracer.OnError(err)
		return r.result, err
	}
	return r.result, nil
}

func (p *Provisioner) newRun(ctx context.Context, req *Request) (*run, error) {
	settings, err := p.conf.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateRequest(req, settings); err != nil {
		return nil, err
	}

	dataAccount, err := deriveDataAccount(req, settings)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	result := &Result{
		RunID:       runID,
		State:       StateStart,
		Strategy:    settings.strategy,
		Mode:        settings.mode,
		Payer:       req.Payer,
		DataAccount: dataAccount,
		Program:     settings.program,
		Space:       uint64(len(req.InitialData)),
		Receipts:    make(map[State]*Receipt),
		StartedAt:   p.now(),
	}

	return &run{
		p: p,
		log: p.log.WithFields(logrus.Fields{
			"run":          runID,
			"data_account": dataAccount.PublicKey().ToBase58(),
			"program":      settings.program.PublicKey().ToBase58(),
		}),
		req:      req,
		settings: settings,
		result:   result,
	}, nil
}

func validateRequest(req *Request, s *settings) error {
	if req == nil {
		return errors.Wrap(ErrInvalidRequest, "request is nil")
	}
	if req.Payer == nil {
		return errors.Wrap(ErrInvalidRequest, "payer is required")
	}
	if err := req.Payer.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidRequest, "invalid payer: %v", err)
	}
	if uint64(len(req.InitialData)) > maxAccountDataLength {
		return errors.Wrapf(ErrInvalidRequest, "initial data exceeds %d bytes", maxAccountDataLength)
	}
	if s.strategy == AddressStrategySeeded {
		if len(req.Seed) == 0 {
			return errors.Wrap(ErrInvalidRequest, "seed is required for the seeded address strategy")
		}
		if len(req.Seed) > solana.MaxSeedLength {
			return errors.Wrapf(ErrInvalidRequest, "seed exceeds %d bytes", solana.MaxSeedLength)
		}
	}
	return nil
}

// deriveDataAccount returns the identity the account is created at. Random
// identities can sign; seeded ones are public only and their creation is
// authorized by the payer as base.
func deriveDataAccount(req *Request, s *settings) (*common.Account, error) {
	if s.strategy == AddressStrategySeeded {
		account, err := req.Payer.ToSeededAccount(req.Seed, s.program)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidRequest, "cannot derive seeded address: %v", err)
		}
		return account, nil
	}

	account, err := common.NewRandomAccount()
	if err != nil {
		return nil, errors.Wrap(err, "error generating data account")
	}
	return account, nil
}

func (r *run) execute(ctx context.Context) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(s.target, err)
		}

		if err := r.runStep(ctx, s); err != nil {
			return r.fail(s.target, err)
		}
		r.transition(s.target)
	}

	r.transition(StateDone)
	r.log.WithField("rent", r.result.RentLamports).Info("account provisioned")
	return nil
}

func (r *run) runStep(ctx context.Context, s step) error {
	// A submitted transaction can't be withdrawn, so a started step isn't
	// interrupted by cancellation.
	stepCtx := context.WithoutCancel(ctx)

	tracer := metrics.TraceMethodCall(stepCtx, metricsStructName, "step_"+s.target.String())
	defer tracer.End()
	tracer.AddAttribute("run", r.result.RunID)

	start := r.p.now()
	err := s.execute(r, stepCtx)
	metrics.RecordDuration(stepCtx, stepDurationMetric, r.p.now().Sub(start))

	tracer.OnError(err)
	return err
}

func (r *run) transition(to State) {
	from := r.result.State
	if !canTransition(from, to) {
		r.log.WithFields(logrus.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Error("illegal state transition")
		return
	}

	r.result.State = to
	r.result.Transitions = append(r.result.Transitions, Transition{
		From: from,
		To:   to,
		At:   r.p.now(),
	})
}

func (r *run) fail(stage State, cause error) error {
	err := &StageError{Stage: stage, Cause: cause}

	r.result.FailedStage = stage
	r.result.Err = err
	r.transition(StateFailed)

	log := r.log.WithField("stage", stage.String()).WithError(cause)
	if IsAmbiguous(cause) {
		log.Warn("provisioning step outcome unknown")
	} else {
		log.Warn("provisioning step failed")
	}
	return err
}

func (r *run) skip(stage State, reason string) {
	r.result.Skipped = append(r.result.Skipped, stage)
	r.log.WithField("stage", stage.String()).Infof("skipping step, %s", reason)
}

func (r *run) record(ctx context.Context) {
	event := map[string]interface{}{
		"run":          r.result.RunID,
		"state":        r.result.State.String(),
		"strategy":     string(r.result.Strategy),
		"mode":         string(r.result.Mode),
		"data_account": r.result.DataAccount.PublicKey().ToBase58(),
		"program":      r.result.Program.PublicKey().ToBase58(),
		"space":        r.result.Space,
		"rent":         r.result.RentLamports,
		"duration_ms":  r.result.Duration.Milliseconds(),
	}
	if r.result.State == StateFailed {
		event["failed_stage"] = r.result.FailedStage.String()
		event["ambiguous"] = IsAmbiguous(r.result.Err)
		metrics.RecordCount(ctx, failedRunCountMetric, 1)
	}

	metrics.RecordEvent(ctx, runEventName, event)
	metrics.RecordDuration(ctx, runDurationMetric, r.result.Duration)
}

func (r *run) submit(ctx context.Context, stage State, instructions []solana.Instruction) error {
	txn, err := BuildTransaction(r.req.Payer, instructions...)
	if err != nil {
		return err
	}

	signers, err := ResolveSigners(txn, r.req.Payer, r.result.DataAccount)
	if err != nil {
		return err
	}

	receipt, err := r.p.transport.SubmitAndConfirm(ctx, txn, signers...)
	if err != nil {
		return err
	}
	r.result.Receipts[stage] = receipt

	r.log.WithFields(logrus.Fields{
		"stage":     stage.String(),
		"signature": receipt.Signature.ToBase58(),
		"slot":      receipt.Slot,
	}).Debug("step confirmed")
	return nil
}

func (r *run) queryRent(ctx context.Context) error {
	rent, err := r.p.transport.GetMinimumRentExemption(ctx, r.result.Space)
	if err != nil {
		return err
	}

	r.result.RentLamports = rent
	return nil
}

func (r *run) fund(ctx context.Context) error {
	lamports := r.result.RentLamports

	if r.settings.strategy == AddressStrategySeeded {
		state, err := r.existingState(ctx)
		if err != nil {
			return err
		}
		if state != nil {
			if state.Lamports >= lamports {
				r.skip(StateFunded, "address already funded")
				return nil
			}
			lamports -= state.Lamports
		}
	}

	return r.submit(ctx, StateFunded, fundInstructions(r.req.Payer, r.result.DataAccount, lamports))
}

func (r *run) create(ctx context.Context) error {
	if r.settings.strategy == AddressStrategySeeded {
		state, err := r.existingState(ctx)
		if err != nil {
			return err
		}
		created, err := r.isCreated(state)
		if err != nil {
			return err
		}
		if created {
			r.skip(StateAccountCreated, "account already created")
			return nil
		}
	}

	instructions := createInstructions(r.settings, r.req.Payer, r.result.DataAccount, r.req.Seed, r.result.Space)
	return r.submit(ctx, StateAccountCreated, instructions)
}

func (r *run) invoke(ctx context.Context) error {
	data := r.req.InstructionData
	if data == nil {
		data = r.req.InitialData
	}

	return r.submit(ctx, StateInstructionSubmitted, programInstructions(r.settings.program, r.req.Payer, r.result.DataAccount, data))
}

// existingState returns nil if the data account doesn't exist yet.
func (r *run) existingState(ctx context.Context) (*AccountState, error) {
	state, err := r.p.transport.GetAccountState(ctx, r.result.DataAccount)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return state, nil
}

// isCreated reports whether the data account already has the layout a
// previous run would have created. Any other allocated layout is an error.
func (r *run) isCreated(state *AccountState) (bool, error) {
	if state == nil {
		return false, nil
	}

	program := r.settings.program.PublicKey().ToBytes()
	owner := state.Owner.PublicKey().ToBytes()

	switch {
	case bytes.Equal(owner, program) && uint64(len(state.Data)) == r.result.Space:
		return true, nil
	case bytes.Equal(owner, program):
		return false, errors.Wrapf(ErrAddressInUse, "allocated with %d bytes, expected %d", len(state.Data), r.result.Space)
	case !isSystemOwned(owner) || len(state.Data) > 0:
		return false, errors.Wrapf(ErrAddressInUse, "owned by %s", state.Owner.PublicKey().ToBase58())
	}
	return false, nil
}

func isSystemOwned(owner []byte) bool {
	return bytes.Equal(owner, system.ProgramKey[:])
}
