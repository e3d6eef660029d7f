package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"intentLedger/internal/model"
)

// RunConfig holds runtime settings for a snapshot sync.
type RunConfig struct {
	Accounts     []common.Address
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	// Interval repeats the sync until the context ends; zero syncs once.
	Interval time.Duration
}

// Chain reports the block a snapshot was taken at.
type Chain interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Ledger reads the state being snapshotted.
type Ledger interface {
	GetUserBalance(ctx context.Context, account common.Address) (*big.Int, *big.Int, error)
	GetUserIntents(ctx context.Context, account common.Address) ([]model.Intent, error)
}

// Sink persists snapshots.
type Sink interface {
	UpsertBalances(ctx context.Context, chainID uint64, balances []model.Balance) error
	UpsertIntents(ctx context.Context, chainID uint64, intents []model.Intent) error
	SaveState(ctx context.Context, name string, block uint64) error
}

// Runner copies ledger balances and intents of a set of accounts into a sink.
type Runner struct {
	cfg    RunConfig
	chain  Chain
	ledger Ledger
	sink   Sink
	logger *zap.Logger
}

func NewRunner(cfg RunConfig, chain Chain, ledger Ledger, sink Sink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Runner{cfg: cfg, chain: chain, ledger: ledger, sink: sink, logger: logger}
}

// Run syncs once, or every Interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil || r.ledger == nil {
		return fmt.Errorf("chain and ledger are required")
	}
	if r.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if len(r.cfg.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	if err := r.SyncOnce(ctx, chainID.Uint64()); err != nil || r.cfg.Interval <= 0 {
		return err
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := r.SyncOnce(ctx, chainID.Uint64()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("sync pass failed", zap.Error(err))
		}
	}
}

// SyncOnce snapshots every configured account at the latest block.
func (r *Runner) SyncOnce(ctx context.Context, chainID uint64) error {
	var block uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	spans, err := SplitSpans(len(r.cfg.Accounts), r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, span := range spans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		accounts := r.cfg.Accounts[span.From:span.To]
		balances := make([]model.Balance, 0, len(accounts))
		var intents []model.Intent
		for _, account := range accounts {
			b, err := r.balanceWithRetry(ctx, account)
			if err != nil {
				return fmt.Errorf("balance %s: %w", account.Hex(), err)
			}
			balances = append(balances, b)

			listed, err := r.intentsWithRetry(ctx, account)
			if err != nil {
				return fmt.Errorf("intents %s: %w", account.Hex(), err)
			}
			intents = append(intents, listed...)
		}

		if err := r.sink.UpsertBalances(ctx, chainID, balances); err != nil {
			return fmt.Errorf("store balances: %w", err)
		}
		if err := r.sink.UpsertIntents(ctx, chainID, intents); err != nil {
			return fmt.Errorf("store intents: %w", err)
		}
		r.logger.Info("batch synced", zap.Int("accounts", len(accounts)), zap.Int("intents", len(intents)), zap.Uint64("block", block))
	}

	if err := r.sink.SaveState(ctx, StateName(chainID), block); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// StateName is the sync_state key of a chain.
func StateName(chainID uint64) string {
	return fmt.Sprintf("snapshot:%d", chainID)
}

func (r *Runner) balanceWithRetry(ctx context.Context, account common.Address) (model.Balance, error) {
	var b model.Balance
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		available, locked, err := r.ledger.GetUserBalance(ctx, account)
		if err != nil {
			r.logger.Warn("balance read failed", zap.Error(err), zap.String("account", account.Hex()))
			return err
		}
		b = model.Balance{Account: account, Available: available, Locked: locked, RefreshedAt: time.Now().UTC()}
		return nil
	})
	return b, err
}

func (r *Runner) intentsWithRetry(ctx context.Context, account common.Address) ([]model.Intent, error) {
	var intents []model.Intent
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		intents, err = r.ledger.GetUserIntents(ctx, account)
		if err != nil {
			r.logger.Warn("intent read failed", zap.Error(err), zap.String("account", account.Hex()))
		}
		return err
	})
	return intents, err
}
