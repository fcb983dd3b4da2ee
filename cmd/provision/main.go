package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/code-payments/account-provisioner/pkg/common"
	"github.com/code-payments/account-provisioner/pkg/metrics"
	"github.com/code-payments/account-provisioner/pkg/provisioner"
	"github.com/code-payments/account-provisioner/pkg/solana"
	"github.com/code-payments/account-provisioner/pkg/solana/memory"
	"github.com/code-payments/account-provisioner/pkg/solana/tokendata"
)

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "cmd/provision")

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we do it ourselves.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		logger.WithError(err).Errorf("failed to check if config exists")
		return err
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		logger.WithError(err).Error("failed to load config")
		return err
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		logger.WithError(err).Error("failed to unmarshal config")
		return err
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Error("error connecting to new relic")
			return err
		}

		metricsProvider = nr
		defer nr.Shutdown(config.Timeout)
	}

	configureLogger(config, metricsProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	ctx = metrics.NewContext(ctx, metricsProvider)
	ctx, end := metrics.StartTransaction(ctx, "provision")
	defer end()

	client, err := newClient(config)
	if err != nil {
		logger.WithError(err).Error("failed to initialize solana client")
		return err
	}

	workflowConfig := newWorkflowConfig(config)
	transport := provisioner.NewSolanaTransport(client, workflowConfig)
	p, err := provisioner.New(transport, workflowConfig)
	if err != nil {
		logger.WithError(err).Error("failed to initialize provisioner")
		return err
	}

	req, err := newRequest(config)
	if err != nil {
		logger.WithError(err).Error("invalid request configuration")
		return err
	}

	log := logger.WithField("payer", req.Payer.PublicKey().ToBase58())

	if config.AirdropLamports > 0 {
		receipt, err := transport.RequestTestFunds(ctx, req.Payer, config.AirdropLamports)
		if err != nil {
			log.WithError(err).Warn("airdrop failed, continuing with the existing balance")
		} else {
			log.WithFields(logrus.Fields{
				"lamports":  config.AirdropLamports,
				"signature": base58.Encode(receipt.Signature[:]),
			}).Info("airdrop confirmed")
		}
	}

	result, err := p.Provision(ctx, req)
	if result != nil {
		log = log.WithFields(resultFields(result))
	}
	if err != nil {
		if provisioner.IsAmbiguous(err) {
			log.WithError(err).Error("provisioning outcome is unknown, check the data account before retrying")
		} else {
			log.WithError(err).Error("provisioning failed")
		}
		return err
	}
	log.Info("provisioning completed")

	if !config.Verify {
		return nil
	}

	state, err := provisioner.VerifyAccount(ctx, transport, result)
	if err != nil {
		log.WithError(err).Error("verification failed")
		return err
	}

	verifiedLog := log.WithField("lamports", state.Lamports)
	if result.Program.PublicKey().ToBase58() == tokendata.DevnetProgramAddress || config.Endpoint == memoryEndpoint {
		if decoded, err := tokendata.UnmarshalTokenData(state.Data); err == nil {
			verifiedLog = verifiedLog.WithFields(logrus.Fields{
				"token_amount":  decoded.Amount,
				"token_history": len(decoded.History),
			})
		}
	}
	verifiedLog.Info("account verified")

	return nil
}

func newClient(config BaseConfig) (solana.Client, error) {
	if config.Endpoint != memoryEndpoint {
		return solana.New(config.Endpoint), nil
	}

	program, err := common.NewAccountFromPublicKeyString(config.Program)
	if err != nil {
		return nil, errors.Wrap(err, "invalid program address")
	}

	chain := memory.NewChain()
	chain.RegisterProgram(program.PublicKey().ToBytes(), memory.TokenDataProgram)
	return chain, nil
}

// newWorkflowConfig layers the CLI's program and creation mode over the
// PROVISIONER_ environment configs, so the workflow and the in-process chain
// agree on the program.
func newWorkflowConfig(config BaseConfig) provisioner.ConfigProvider {
	return provisioner.WithOverrides(provisioner.WithEnvConfigs(), provisioner.Overrides{
		Program:      config.Program,
		CreationMode: creationMode(config),
	})
}

func creationMode(config BaseConfig) provisioner.CreationMode {
	if len(config.CreationMode) > 0 {
		return provisioner.CreationMode(config.CreationMode)
	}
	if config.Endpoint != memoryEndpoint {
		return provisioner.CreationModeAllocateAssign
	}
	return provisioner.CreationModeCreateAccount
}

func newRequest(config BaseConfig) (*provisioner.Request, error) {
	var payer *common.Account
	var err error
	if len(config.PayerKeypair) > 0 {
		payer, err = common.NewAccountFromKeypairFile(config.PayerKeypair)
	} else {
		payer, err = common.NewRandomAccount()
	}
	if err != nil {
		return nil, errors.Wrap(err, "error loading payer")
	}

	instructionData := tokendata.SetTokenToAccountData(config.InstructionAmount)
	if len(config.InstructionData) > 0 {
		instructionData, err = base58.Decode(config.InstructionData)
		if err != nil {
			return nil, errors.Wrap(err, "instruction data is not valid base58")
		}
	}

	return &provisioner.Request{
		Payer:           payer,
		InitialData:     make([]byte, config.DataSize),
		InstructionData: instructionData,
		Seed:            config.Seed,
	}, nil
}

func resultFields(result *provisioner.Result) logrus.Fields {
	fields := logrus.Fields{
		"run_id":        result.RunID,
		"state":         result.State.String(),
		"strategy":      result.Strategy,
		"mode":          result.Mode,
		"rent_lamports": result.RentLamports,
		"space":         result.Space,
		"duration":      result.Duration,
	}
	if result.DataAccount != nil {
		fields["data_account"] = result.DataAccount.PublicKey().ToBase58()
	}
	if result.Program != nil {
		fields["program"] = result.Program.PublicKey().ToBase58()
	}
	if result.State == provisioner.StateFailed {
		fields["failed_stage"] = result.FailedStage.String()
	}
	for stage, receipt := range result.Receipts {
		fields["signature_"+stage.String()] = base58.Encode(receipt.Signature[:])
	}
	if len(result.Skipped) > 0 {
		skipped := make([]string, len(result.Skipped))
		for i, stage := range result.Skipped {
			skipped[i] = stage.String()
		}
		fields["skipped"] = strings.Join(skipped, ",")
	}
	return fields
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewCustomNewRelicLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}
