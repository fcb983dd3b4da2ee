package provisioner

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/config"
	"github.com/code-payments/account-provisioner/pkg/config/env"
	"github.com/code-payments/account-provisioner/pkg/config/memory"
	"github.com/code-payments/account-provisioner/pkg/config/wrapper"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/tokendata"
)

const (
	envConfigPrefix = "PROVISIONER_"

	ProgramConfigEnvName = envConfigPrefix + "PROGRAM"
	defaultProgram       = tokendata.DevnetProgramAddress

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "confirmed"

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = 500 * time.Millisecond

	MaxPollsConfigEnvName = envConfigPrefix + "MAX_POLLS"
	defaultMaxPolls       = 120

	AddressStrategyConfigEnvName = envConfigPrefix + "ADDRESS_STRATEGY"
	defaultAddressStrategy       = string(AddressStrategyRandom)

	CreationModeConfigEnvName = envConfigPrefix + "CREATION_MODE"
	defaultCreationMode       = string(CreationModeCreateAccount)

	AirdropRateLimitConfigEnvName = envConfigPrefix + "AIRDROP_RATE_LIMIT"
	defaultAirdropRateLimit       = 1.0 / 30
)

// AddressStrategy selects how the data account address is chosen.
type AddressStrategy string

const (
	// AddressStrategyRandom uses a freshly generated keypair per run.
	AddressStrategyRandom AddressStrategy = "random"

	// AddressStrategySeeded derives the address from the payer, a seed and
	// the program, so reruns target the same address.
	AddressStrategySeeded AddressStrategy = "seeded"
)

// CreationMode selects the system instructions that create the account.
type CreationMode string

const (
	// CreationModeCreateAccount uses a single CreateAccount instruction.
	CreationModeCreateAccount CreationMode = "create_account"

	// CreationModeAllocateAssign uses Allocate and Assign, which succeed at an
	// address that already holds lamports.
	CreationModeAllocateAssign CreationMode = "allocate_assign"
)

type conf struct {
	program          config.String
	commitment       config.String
	pollInterval     config.Duration
	maxPolls         config.Uint64
	addressStrategy  config.String
	creationMode     config.String
	airdropRateLimit config.Float64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			program:          env.NewStringConfig(ProgramConfigEnvName, defaultProgram),
			commitment:       env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
			pollInterval:     env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
			maxPolls:         env.NewUint64Config(MaxPollsConfigEnvName, defaultMaxPolls),
			addressStrategy:  env.NewStringConfig(AddressStrategyConfigEnvName, defaultAddressStrategy),
			creationMode:     env.NewStringConfig(CreationModeConfigEnvName, defaultCreationMode),
			airdropRateLimit: env.NewFloat64Config(AirdropRateLimitConfigEnvName, defaultAirdropRateLimit),
		}
	}
}

// Overrides are values supplied by the caller that take precedence over the
// provider they are applied to. Empty fields are ignored.
type Overrides struct {
	Program      string
	CreationMode CreationMode
}

// WithOverrides wraps provider so that the non-empty fields of overrides win.
func WithOverrides(provider ConfigProvider, overrides Overrides) ConfigProvider {
	return func() *conf {
		c := provider()
		if len(overrides.Program) > 0 {
			c.program = wrapper.NewStringConfig(memory.NewConfig(overrides.Program), defaultProgram)
		}
		if len(overrides.CreationMode) > 0 {
			c.creationMode = wrapper.NewStringConfig(memory.NewConfig(string(overrides.CreationMode)), defaultCreationMode)
		}
		return c
	}
}

type testOverrides struct {
	program          string
	commitment       string
	pollInterval     time.Duration
	maxPolls         uint64
	addressStrategy  AddressStrategy
	creationMode     CreationMode
	airdropRateLimit float64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			program:          wrapper.NewStringConfig(memory.NewConfig(nonZero(overrides.program)), defaultProgram),
			commitment:       wrapper.NewStringConfig(memory.NewConfig(nonZero(overrides.commitment)), defaultCommitment),
			pollInterval:     wrapper.NewDurationConfig(memory.NewConfig(overrides.pollInterval), defaultPollInterval),
			maxPolls:         wrapper.NewUint64Config(memory.NewConfig(nonZero(overrides.maxPolls)), defaultMaxPolls),
			addressStrategy:  wrapper.NewStringConfig(memory.NewConfig(nonZero(string(overrides.addressStrategy))), defaultAddressStrategy),
			creationMode:     wrapper.NewStringConfig(memory.NewConfig(nonZero(string(overrides.creationMode))), defaultCreationMode),
			airdropRateLimit: wrapper.NewFloat64Config(memory.NewConfig(overrides.airdropRateLimit), defaultAirdropRateLimit),
		}
	}
}

// nonZero maps the zero value to nil, so the wrapper falls back to its default.
func nonZero[T comparable](v T) interface{} {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

// settings is the per-run snapshot of the workflow config.
type settings struct {
	program  *common.Account
	strategy AddressStrategy
	mode     CreationMode
}

func (c *conf) loadSettings(ctx context.Context) (*settings, error) {
	program, err := common.NewAccountFromPublicKeyString(c.program.Get(ctx))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "invalid program address: %v", err)
	}

	strategy := AddressStrategy(c.addressStrategy.Get(ctx))
	switch strategy {
	case AddressStrategyRandom, AddressStrategySeeded:
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown address strategy %q", strategy)
	}

	mode := CreationMode(c.creationMode.Get(ctx))
	switch mode {
	case CreationModeCreateAccount, CreationModeAllocateAssign:
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown creation mode %q", mode)
	}

	return &settings{
		program:  program,
		strategy: strategy,
		mode:     mode,
	}, nil
}

func (c *conf) loadCommitment(ctx context.Context) (solana.Commitment, error) {
	commitment, err := solana.ParseCommitment(c.commitment.Get(ctx))
	if err != nil {
		return solana.Commitment{}, errors.Wrapf(ErrInvalidConfig, "invalid commitment %q", c.commitment.Get(ctx))
	}
	return commitment, nil
}
