package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentLedger/internal/allowance"
	"intentLedger/internal/balance"
	"intentLedger/internal/chain"
	"intentLedger/internal/config"
	"intentLedger/internal/contracts"
	"intentLedger/internal/deposit"
	"intentLedger/internal/intent"
	"intentLedger/internal/metrics"
	"intentLedger/internal/model"
	"intentLedger/internal/permit"
	"intentLedger/internal/session"
	"intentLedger/internal/storage"
	"intentLedger/internal/storage/postgres"
	"intentLedger/internal/txn"
	"intentLedger/internal/wallet"
)

// app is the wiring shared by every command. The wallet side is only
// built for commands that sign or send.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *chain.Client
	contracts model.Contracts
	ledger    *contracts.Ledger
	token     *contracts.Token
	view      *balance.View
	metrics   *metrics.Recorder

	wallet  *wallet.KeyWallet
	sender  *txn.Sender
	session *session.Guard
	journal storage.Journal
	store   *postgres.Store
}

func newApp(ctx context.Context, cmd *cobra.Command, withWallet bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	if cfg.RPCRPS > 0 {
		client = client.WithReadLimit(cfg.RPCRPS)
	}

	a := &app{cfg: cfg, logger: logger, client: client, metrics: metrics.New()}
	if err := a.init(ctx, withWallet); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, withWallet bool) error {
	chainID, err := a.client.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	a.contracts, err = a.cfg.Contracts(chainID)
	if err != nil {
		return err
	}
	if a.ledger, err = contracts.NewLedger(a.client, a.contracts); err != nil {
		return err
	}
	if a.token, err = contracts.NewToken(a.client, a.contracts.Token); err != nil {
		return err
	}
	a.view = balance.NewView(a.ledger, a.token)
	a.cfg.Decimals = tokenDecimals(ctx, a.cfg, a.token, a.logger)

	if a.cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres %s: %w", a.cfg.RedactedDSN(), err)
		}
		a.store = store
	}

	if !withWallet {
		return nil
	}

	key, err := a.loadKey()
	if err != nil {
		return err
	}
	var confirm wallet.Confirm
	if !a.cfg.Yes {
		confirm = wallet.TerminalConfirm(os.Stdin, os.Stderr)
	}
	if a.wallet, err = wallet.NewKeyWallet(key, chainID, a.client, confirm, a.logger); err != nil {
		return err
	}
	a.sender = txn.NewSender(a.wallet, a.client, txn.Config{
		InclusionTimeout: a.cfg.InclusionTimeout,
		PollInterval:     a.cfg.PollInterval,
	}, a.logger)
	a.session = session.NewGuard()

	switch {
	case a.store != nil:
		if err := a.store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.journal = a.store
	case a.cfg.Journal != "":
		a.journal = storage.NewJSONLJournal(a.cfg.Journal)
	}

	a.logger.Info("wallet ready",
		zap.String("account", a.wallet.Address().Hex()),
		zap.String("chain_id", chainID.String()),
		zap.String("ledger", a.contracts.Ledger.Hex()),
	)
	return nil
}

func (a *app) loadKey() (*ecdsa.PrivateKey, error) {
	switch {
	case a.cfg.PrivateKey != "":
		return wallet.ParseHexKey(a.cfg.PrivateKey)
	case a.cfg.Keystore != "":
		return wallet.LoadKeystore(a.cfg.Keystore, wallet.NewPassphrase(a.cfg.KeystorePassEnv))
	default:
		return nil, fmt.Errorf("private-key or keystore is required")
	}
}

func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn("write metrics file failed", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
	}
	if a.store != nil {
		a.store.Close()
	}
	a.client.Close()
	_ = a.logger.Sync()
}

func (a *app) orchestrator() (*deposit.Orchestrator, error) {
	permit2, err := contracts.NewPermit2(a.client, a.contracts.Authorization)
	if err != nil {
		return nil, err
	}
	return deposit.NewOrchestrator(deposit.Deps{
		Wallet:    a.wallet,
		Ledger:    a.ledger,
		Nonces:    permit.NewNonceResolver(permit2, a.cfg.NoncePolicy(), a.logger),
		Allowance: allowance.NewGuard(a.token, a.sender, a.cfg.ApproveGas, a.logger),
		Sender:    a.sender,
		Balances:  a.view,
		Session:   a.session,
		Journal:   a.journal,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}, deposit.Config{
		DomainName:  a.cfg.Permit2Domain,
		DepositGas:  a.cfg.DepositGas,
		WithdrawGas: a.cfg.WithdrawGas,
	})
}

func (a *app) manager() (*intent.Manager, error) {
	return intent.NewManager(intent.Deps{
		Account:  a.wallet,
		Ledger:   a.ledger,
		Sender:   a.sender,
		Balances: a.view,
		Session:  a.session,
		Journal:  a.journal,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}, intent.Config{
		IntentGas: a.cfg.IntentGas,
		SettleGas: a.cfg.SettleGas,
	})
}

type decimalsReader interface {
	Decimals(ctx context.Context) (uint8, error)
}

// tokenDecimals keeps configured decimals and otherwise asks the token,
// falling back to the configured default when the read fails.
func tokenDecimals(ctx context.Context, cfg config.Config, token decimalsReader, logger *zap.Logger) uint8 {
	if cfg.DecimalsSet {
		return cfg.Decimals
	}
	d, err := token.Decimals(ctx)
	if err != nil {
		logger.Warn("token decimals unavailable, using default", zap.Uint8("decimals", cfg.Decimals), zap.Error(err))
		return cfg.Decimals
	}
	return d
}

// parseAmount reads a decimal token amount in whole units.
func (a *app) parseAmount(value string) (*big.Int, error) {
	return balance.ParseUnits(value, a.cfg.Decimals)
}

func parseAccount(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address: %s", value)
	}
	return common.HexToAddress(value), nil
}
