package provisioner

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/metrics"
	"github.com/code-payments/account-provisioner/pkg/rate"
	"github.com/code-payments/account-provisioner/pkg/retry"
	"github.com/code-payments/account-provisioner/pkg/retry/backoff"
	"github.com/code-payments/account-provisioner/pkg/solana"
)

const (
	transportMetricsStructName = "provisioner.solanaTransport"
)

var errNotConfirmed = errors.New("transaction not yet confirmed")

type solanaTransport struct {
	log    *logrus.Entry
	conf   *conf
	client solana.Client

	airdropLimiter rate.Limiter
}

// NewSolanaTransport returns a Transport backed by a Solana RPC client.
func NewSolanaTransport(client solana.Client, configProvider ConfigProvider) Transport {
	conf := configProvider()
	return &solanaTransport{
		log:            logrus.StandardLogger().WithField("type", "provisioner/transport"),
		conf:           conf,
		client:         client,
		airdropLimiter: rate.NewLocalRateLimiterCtor()(conf.airdropRateLimit.Get(context.Background())),
	}
}

func (t *solanaTransport) GetMinimumRentExemption(ctx context.Context, size uint64) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, transportMetricsStructName, "GetMinimumRentExemption")
	defer tracer.End()

	lamports, err := t.client.GetMinimumBalanceForRentExemption(size)
	if err != nil {
		err = newNetworkError("getMinimumBalanceForRentExemption", err)
		tracer.OnError(err)
		return 0, err
	}
	return lamports, nil
}

func (t *solanaTransport) SubmitAndConfirm(ctx context.Context, txn *solana.Transaction, signers ...*common.Account) (*Receipt, error) {
	tracer := metrics.TraceMethodCall(ctx, transportMetricsStructName, "SubmitAndConfirm")
	defer tracer.End()

	receipt, err := t.submitAndConfirm(ctx, txn, signers...)
	tracer.OnError(err)
	return receipt, err
}

func (t *solanaTransport) submitAndConfirm(ctx context.Context, txn *solana.Transaction, signers ...*common.Account) (*Receipt, error) {
	if txn == nil {
		return nil, errors.New("transaction is nil")
	}

	commitment, err := t.conf.loadCommitment(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveSigners(txn, signers...)
	if err != nil {
		return nil, err
	}

	blockhash, err := t.client.GetLatestBlockhash()
	if err != nil {
		return nil, newNetworkError("getLatestBlockhash", err)
	}
	txn.SetBlockhash(blockhash)

	keys := make([]ed25519.PrivateKey, len(resolved))
	for i, signer := range resolved {
		keys[i] = signer.PrivateKey().ToBytes()
	}
	if err := txn.Sign(keys...); err != nil {
		return nil, errors.Wrap(err, "error signing transaction")
	}

	log := t.log.WithFields(logrus.Fields{
		"method":    "SubmitAndConfirm",
		"signature": txn.Signatures[0].ToBase58(),
	})

	sig, err := t.client.SubmitTransaction(*txn, commitment)
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			log.WithError(txErr).Info("transaction rejected")
			return nil, newRejectedError(txErr)
		}

		log.WithError(err).Warn("failure submitting transaction")
		return nil, newNetworkError("sendTransaction", err)
	}

	receipt, err := t.awaitConfirmation(ctx, sig, commitment)
	if err != nil {
		log.WithError(err).Warn("transaction did not confirm")
		return nil, err
	}

	log.WithField("slot", receipt.Slot).Debug("transaction confirmed")
	return receipt, nil
}

func (t *solanaTransport) RequestTestFunds(ctx context.Context, account *common.Account, lamports uint64) (*Receipt, error) {
	tracer := metrics.TraceMethodCall(ctx, transportMetricsStructName, "RequestTestFunds")
	defer tracer.End()

	log := t.log.WithFields(logrus.Fields{
		"method":   "RequestTestFunds",
		"account":  account.PublicKey().ToBase58(),
		"lamports": lamports,
	})

	allowed, err := t.airdropLimiter.Allow(account.PublicKey().ToBase58())
	if err != nil {
		return nil, errors.Wrap(err, "error checking airdrop rate limit")
	} else if !allowed {
		log.Info("airdrop request rate limited")
		return nil, ErrRateLimited
	}

	commitment, err := t.conf.loadCommitment(ctx)
	if err != nil {
		return nil, err
	}

	sig, err := t.client.RequestAirdrop(account.PublicKey().ToBytes(), lamports, commitment)
	if err != nil {
		err = newNetworkError("requestAirdrop", err)
		log.WithError(err).Warn("failure requesting airdrop")
		tracer.OnError(err)
		return nil, err
	}

	receipt, err := t.awaitConfirmation(ctx, sig, commitment)
	if err != nil {
		log.WithError(err).Warn("airdrop did not confirm")
		tracer.OnError(err)
		return nil, err
	}
	return receipt, nil
}

func (t *solanaTransport) GetAccountState(ctx context.Context, account *common.Account) (*AccountState, error) {
	tracer := metrics.TraceMethodCall(ctx, transportMetricsStructName, "GetAccountState")
	defer tracer.End()

	commitment, err := t.conf.loadCommitment(ctx)
	if err != nil {
		return nil, err
	}

	info, err := t.client.GetAccountInfo(account.PublicKey().ToBytes(), commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		err = newNetworkError("getAccountInfo", err)
		tracer.OnError(err)
		return nil, err
	}

	owner, err := common.NewAccountFromPublicKeyBytes(info.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "invalid account owner")
	}

	return &AccountState{
		Address:    account,
		Owner:      owner,
		Lamports:   info.Lamports,
		Data:       info.Data,
		Executable: info.Executable,
	}, nil
}

// awaitConfirmation polls the signature status until it satisfies the
// commitment, fails, or the poll budget runs out.
func (t *solanaTransport) awaitConfirmation(ctx context.Context, sig solana.Signature, commitment solana.Commitment) (*Receipt, error) {
	pollInterval := t.conf.pollInterval.Get(ctx)
	maxPolls := t.conf.maxPolls.Get(ctx)
	if maxPolls == 0 {
		maxPolls = 1
	}

	var receipt *Receipt
	attempts, err := retry.Retry(
		ctx,
		func() error {
			statuses, err := t.client.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				return newNetworkError("getSignatureStatuses", err)
			}
			if len(statuses) == 0 || statuses[0] == nil {
				return errNotConfirmed
			}

			status := statuses[0]
			if status.ErrorResult != nil {
				return newRejectedError(status.ErrorResult)
			}
			if !status.Satisfies(commitment) {
				return errNotConfirmed
			}

			receipt = &Receipt{
				Signature:  sig,
				Slot:       status.Slot,
				Commitment: commitment,
			}
			return nil
		},
		retry.RetriableFunc(func(err error) bool {
			var rejected *RejectedError
			return !errors.As(err, &rejected)
		}),
		retry.Limit(uint(maxPolls)),
		retry.Backoff(backoff.Constant(pollInterval), pollInterval),
	)
	if err == nil {
		return receipt, nil
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return nil, rejected
	}
	return nil, errors.Wrapf(ErrTimeout, "signature %s after %d polls (last: %v)", sig.ToBase58(), attempts, err)
}

