package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/code-payments/account-provisioner/pkg/provisioner"
	"github.com/code-payments/account-provisioner/pkg/solana/tokendata"
)

// memoryEndpoint runs the workflow against an in-process chain instead of an
// RPC node.
const memoryEndpoint = "memory"

// BaseConfig contains the configuration for a single provisioning run.
// Program and CreationMode are handed to the workflow, which reads its
// remaining settings (commitment, polling, address strategy) from the
// PROVISIONER_ environment variables.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// Endpoint is the Solana RPC URL, or "memory" for the in-process chain.
	Endpoint string `mapstructure:"endpoint"`

	// Program is the program that owns the data account. On the in-process
	// chain it is also registered as the simulated token-data program.
	Program string `mapstructure:"program"`

	// CreationMode defaults to allocate_assign against an RPC endpoint,
	// since clusters refuse CreateAccount at a funded address.
	CreationMode string `mapstructure:"creation_mode"`

	// PayerKeypair is a Solana CLI keypair file. A random payer is generated
	// when it is empty.
	PayerKeypair string `mapstructure:"payer_keypair"`

	// AirdropLamports are requested from the faucet before the run. Zero
	// disables the airdrop.
	AirdropLamports uint64 `mapstructure:"airdrop_lamports"`

	DataSize uint64 `mapstructure:"data_size"`

	// InstructionData is the base58 encoded program instruction. When empty,
	// a token-data SetTokenToAccount with InstructionAmount is sent.
	InstructionData   string `mapstructure:"instruction_data"`
	InstructionAmount uint32 `mapstructure:"instruction_amount"`

	Seed string `mapstructure:"seed"`

	Verify bool `mapstructure:"verify_result"`

	Timeout time.Duration `mapstructure:"timeout"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = BaseConfig{
	LogLevel: "info",

	AppName: "account-provisioner",

	Endpoint: memoryEndpoint,
	Program:  tokendata.DevnetProgramAddress,

	AirdropLamports: 1_000_000_000,

	DataSize:          tokendata.HeaderSize + tokendata.ChangeDetailSize,
	InstructionAmount: 1,

	Verify: true,

	Timeout: 2 * time.Minute,
}

func init() {
	_ = viper.BindEnv("log_level", "LOG_LEVEL")

	_ = viper.BindEnv("app_name", "APP_NAME")

	_ = viper.BindEnv("endpoint", "SOLANA_ENDPOINT")
	_ = viper.BindEnv("program", provisioner.ProgramConfigEnvName)
	_ = viper.BindEnv("creation_mode", provisioner.CreationModeConfigEnvName)

	_ = viper.BindEnv("payer_keypair", "PAYER_KEYPAIR")
	_ = viper.BindEnv("airdrop_lamports", "AIRDROP_LAMPORTS")

	_ = viper.BindEnv("data_size", "DATA_SIZE")
	_ = viper.BindEnv("instruction_data", "INSTRUCTION_DATA")
	_ = viper.BindEnv("instruction_amount", "INSTRUCTION_AMOUNT")
	_ = viper.BindEnv("seed", "SEED")

	_ = viper.BindEnv("verify_result", "VERIFY_RESULT")
	_ = viper.BindEnv("timeout", "TIMEOUT")

	_ = viper.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")
}
