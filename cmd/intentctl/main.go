package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "intentctl",
		Short:        "Permit deposits and intent lifecycle client for the intent ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "JSON-RPC URL")
	flags.Uint64("chain-id", 0, "expected chain id, 0 means ask the node")
	flags.String("ledger", "", "ledger contract address")
	flags.String("token", "", "ERC-20 token address")
	flags.String("permit2", "", "Permit2 authorization contract address")
	flags.String("intents", "", "intents engine address (defaults to ledger)")
	flags.String("settlement", "", "settlement executor address (defaults to ledger)")
	flags.String("permit2-domain", "Permit2", "EIP-712 domain name of the authorization contract")
	flags.String("private-key", "", "hex private key of the signing account")
	flags.String("keystore", "", "v3 keystore file of the signing account")
	flags.String("keystore-pass-env", "INTENTCTL_KEYSTORE_PASSWORD", "environment variable holding the keystore passphrase")
	flags.BoolP("yes", "y", false, "approve every signature and transaction without prompting")
	flags.Bool("local-network", false, "target a local development node")
	flags.Int64("nonce-offset", 1, "permit nonce offset applied on local networks")
	flags.Duration("inclusion-timeout", 2*time.Minute, "how long to wait for a transaction receipt")
	flags.Duration("poll-interval", time.Second, "receipt polling interval")
	flags.Int("decimals", 6, "token decimals used to parse and format amounts; read from the token when unset")
	flags.String("journal", "./data/activity.jsonl", "activity journal JSONL path, empty disables")
	flags.String("pg-dsn", "", "Postgres DSN; when set the journal is written to Postgres")
	flags.String("metrics-file", "", "write metrics in textfile format on exit")
	flags.Float64("rpc-rps", 0, "RPC read rate limit, 0 means unlimited")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newDepositCmd(),
		newWithdrawCmd(),
		newBalanceCmd(),
		newIntentsCmd(),
		newSubmitCmd(),
		newSettleCmd(),
		newSettleBatchCmd(),
		newMaxIntentsCmd(),
		newMetadataCmd(),
		newSyncCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
