package intent

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"intentLedger/internal/balance"
	"intentLedger/internal/metrics"
	"intentLedger/internal/model"
	"intentLedger/internal/session"
	"intentLedger/internal/storage"
)

// Ledger is the intents engine and settlement executor surface.
type Ledger interface {
	GetUserIntents(ctx context.Context, account common.Address) ([]model.Intent, error)
	SettlementOwner(ctx context.Context) (common.Address, error)
	IntentsOwner(ctx context.Context) (common.Address, error)
	MaxIntents(ctx context.Context) (*big.Int, error)
	SubmitIntentCall(amount *big.Int, intentType string, metadata []byte, gas uint64) (model.Call, error)
	SettleIntentCall(user common.Address, index uint64, pnl *big.Int, gas uint64) (model.Call, error)
	BatchSettleCall(batch model.SettlementBatch, gas uint64) (model.Call, error)
	SetMaxIntentsCall(newMax *big.Int, gas uint64) (model.Call, error)
}

type Sender interface {
	Send(ctx context.Context, call model.Call) (*types.Receipt, error)
}

type Account interface {
	Address() common.Address
}

type Config struct {
	IntentGas uint64
	SettleGas uint64
}

type Deps struct {
	Account  Account
	Ledger   Ledger
	Sender   Sender
	Balances *balance.View
	Session  *session.Guard
	Journal  storage.Journal
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
}

// SubmitResult is a confirmed intent submission.
type SubmitResult struct {
	Tx      model.TransactionRef
	Intent  model.Intent
	Balance model.Balance
}

// SettleResult is a confirmed settlement and the refreshed balances of
// every settled user.
type SettleResult struct {
	Tx       model.TransactionRef
	Settled  int
	Balances []model.Balance
}

// Manager submits intents for the connected account and settles intents
// when that account is the settlement owner.
type Manager struct {
	deps Deps
	cfg  Config
}

func NewManager(deps Deps, cfg Config) (*Manager, error) {
	if deps.Account == nil || deps.Ledger == nil || deps.Sender == nil || deps.Balances == nil {
		return nil, fmt.Errorf("intent manager: missing dependency")
	}
	if deps.Session == nil {
		deps.Session = session.NewGuard()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{deps: deps, cfg: cfg}, nil
}

// Submit encodes meta and locks amount from the available balance into a
// new intent.
func (m *Manager) Submit(ctx context.Context, amount *big.Int, intentType string, meta model.OrderMetadata) (*SubmitResult, error) {
	encoded, err := EncodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	return m.SubmitEncoded(ctx, amount, intentType, encoded)
}

// SubmitEncoded submits an intent with already encoded metadata. The
// returned index is the one the ledger assigned. If the intent cannot be
// read back after inclusion the error comes with a result that still
// carries the transaction and the refreshed balance.
func (m *Manager) SubmitEncoded(ctx context.Context, amount *big.Int, intentType string, metadata []byte) (result *SubmitResult, err error) {
	started := time.Now()
	owner := m.deps.Account.Address()
	logger := m.deps.Logger.With(zap.String("op", model.OpSubmit), zap.String("account", owner.Hex()))

	if amount == nil || amount.Sign() <= 0 {
		err := fmt.Errorf("%w: amount must be positive", model.ErrInvalidAmount)
		m.deps.Metrics.Observe(model.OpSubmit, started, err)
		return nil, err
	}
	intentType = strings.TrimSpace(intentType)
	if intentType == "" {
		return nil, fmt.Errorf("intent type is required")
	}

	release, err := m.deps.Session.Acquire(owner, model.OpSubmit)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := storage.NewActivity(model.OpSubmit, owner.Hex())
	rec.Amount = amount.String()
	rec.Detail = intentType
	defer func() {
		if result != nil {
			rec.TxHash = result.Tx.Hash.Hex()
			if err == nil {
				rec.Detail = fmt.Sprintf("%s index=%d", intentType, result.Intent.Index)
			}
		}
		storage.Append(ctx, m.deps.Journal, logger, rec, err)
		m.deps.Metrics.Observe(model.OpSubmit, started, err)
	}()

	before, err := m.deps.Balances.Refresh(ctx, owner)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(before.Available) > 0 {
		return nil, fmt.Errorf("%w: lock %s, available %s", model.ErrInsufficientAvailableBalance, amount, before.Available)
	}

	existing, err := m.deps.Ledger.GetUserIntents(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	expected := uint64(len(existing))

	call, err := m.deps.Ledger.SubmitIntentCall(amount, intentType, metadata, m.cfg.IntentGas)
	if err != nil {
		return nil, err
	}
	receipt, err := m.deps.Sender.Send(ctx, call)
	if err != nil {
		return nil, err
	}

	// The lock is on-chain from here on: the result keeps the tx even when
	// the follow-up reads fail.
	result = &SubmitResult{Tx: model.TransactionRef{Hash: receipt.TxHash}}
	created, err := m.locateSubmitted(ctx, owner, expected, amount, intentType, metadata)

	bal, refreshErr := m.deps.Balances.Refresh(ctx, owner)
	if refreshErr != nil {
		logger.Warn("balance refresh after submit failed", zap.Error(refreshErr))
	} else {
		result.Balance = bal
	}
	if err != nil {
		logger.Warn("submitted intent not confirmed", zap.String("tx", result.Tx.Hash.Hex()), zap.Error(err))
		return result, err
	}
	result.Intent = created
	logger.Info("intent submitted",
		zap.Uint64("index", created.Index),
		zap.String("amount", amount.String()),
		zap.String("tx", result.Tx.Hash.Hex()),
	)
	return result, nil
}

func (m *Manager) locateSubmitted(ctx context.Context, owner common.Address, from uint64, amount *big.Int, intentType string, metadata []byte) (model.Intent, error) {
	after, err := m.deps.Ledger.GetUserIntents(ctx, owner)
	if err != nil {
		return model.Intent{}, fmt.Errorf("list intents after submit: %w", err)
	}
	created, ok := findSubmitted(after, from, amount, intentType, metadata)
	if !ok {
		return model.Intent{}, fmt.Errorf("%w: submitted intent not listed at or after index %d", model.ErrIntentNotFound, from)
	}
	return created, nil
}

func findSubmitted(intents []model.Intent, from uint64, amount *big.Int, intentType string, metadata []byte) (model.Intent, bool) {
	for i := from; i < uint64(len(intents)); i++ {
		in := intents[i]
		if in.Amount.Cmp(amount) == 0 && in.IntentType == intentType && bytes.Equal(in.Metadata, metadata) {
			return in, true
		}
	}
	return model.Intent{}, false
}

// SettleOne settles a single intent of user with pnl.
func (m *Manager) SettleOne(ctx context.Context, user common.Address, index uint64, pnl *big.Int) (*SettleResult, error) {
	batch := model.SettlementBatch{
		Users:         []common.Address{user},
		IntentIndices: []uint64{index},
		PnLs:          []*big.Int{pnl},
	}
	return m.settle(ctx, model.OpSettle, batch, func() (model.Call, error) {
		return m.deps.Ledger.SettleIntentCall(user, index, pnl, m.cfg.SettleGas)
	})
}

// SettleBatch settles every entry of batch in one transaction. A batch with
// mismatched arrays fails before any network call.
func (m *Manager) SettleBatch(ctx context.Context, batch model.SettlementBatch) (*SettleResult, error) {
	return m.settle(ctx, model.OpSettleBatch, batch, func() (model.Call, error) {
		return m.deps.Ledger.BatchSettleCall(batch, m.cfg.SettleGas)
	})
}

func (m *Manager) settle(ctx context.Context, op string, batch model.SettlementBatch, build func() (model.Call, error)) (result *SettleResult, err error) {
	started := time.Now()
	settler := m.deps.Account.Address()
	logger := m.deps.Logger.With(zap.String("op", op), zap.String("account", settler.Hex()))

	if err := batch.Validate(); err != nil {
		m.deps.Metrics.Observe(op, started, err)
		return nil, err
	}

	release, err := m.deps.Session.Acquire(settler, op)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := storage.NewActivity(op, settler.Hex())
	rec.Detail = fmt.Sprintf("entries=%d", batch.Len())
	defer func() {
		if result != nil {
			rec.TxHash = result.Tx.Hash.Hex()
		}
		storage.Append(ctx, m.deps.Journal, logger, rec, err)
		m.deps.Metrics.Observe(op, started, err)
	}()

	if err := m.requireOwner(ctx, settler, m.deps.Ledger.SettlementOwner); err != nil {
		return nil, err
	}
	users, err := m.checkSettleable(ctx, batch)
	if err != nil {
		return nil, err
	}

	call, err := build()
	if err != nil {
		return nil, err
	}
	receipt, err := m.deps.Sender.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	result = &SettleResult{Tx: model.TransactionRef{Hash: receipt.TxHash}, Settled: batch.Len()}
	m.deps.Metrics.IntentsSettled(result.Settled)

	for _, user := range users {
		bal, err := m.deps.Balances.Refresh(ctx, user)
		if err != nil {
			logger.Warn("balance refresh after settlement failed", zap.String("user", user.Hex()), zap.Error(err))
			continue
		}
		result.Balances = append(result.Balances, bal)
	}
	logger.Info("intents settled", zap.Int("count", result.Settled), zap.String("tx", result.Tx.Hash.Hex()))
	return result, nil
}

// checkSettleable verifies every referenced intent exists and is still
// submitted. It returns the distinct users in batch order.
func (m *Manager) checkSettleable(ctx context.Context, batch model.SettlementBatch) ([]common.Address, error) {
	listed := make(map[common.Address][]model.Intent)
	var users []common.Address
	for i, user := range batch.Users {
		intents, ok := listed[user]
		if !ok {
			var err error
			intents, err = m.deps.Ledger.GetUserIntents(ctx, user)
			if err != nil {
				return nil, fmt.Errorf("list intents of %s: %w", user.Hex(), err)
			}
			listed[user] = intents
			users = append(users, user)
		}
		idx := batch.IntentIndices[i]
		if idx >= uint64(len(intents)) {
			return nil, fmt.Errorf("%w: %s has no intent %d", model.ErrIntentNotFound, user.Hex(), idx)
		}
		if intents[idx].IsExecuted {
			return nil, fmt.Errorf("%w: %s intent %d", model.ErrIntentAlreadyExecuted, user.Hex(), idx)
		}
	}
	return users, nil
}

func (m *Manager) requireOwner(ctx context.Context, account common.Address, owner func(context.Context) (common.Address, error)) error {
	current, err := owner(ctx)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if current != account {
		return fmt.Errorf("%w: %s is not owner %s", model.ErrUnauthorizedSettler, account.Hex(), current.Hex())
	}
	return nil
}

// SetMaxIntents changes the per-user open intent cap. Only the intents
// engine owner may call it.
func (m *Manager) SetMaxIntents(ctx context.Context, newMax *big.Int) (ref *model.TransactionRef, err error) {
	started := time.Now()
	account := m.deps.Account.Address()
	logger := m.deps.Logger.With(zap.String("op", model.OpMaxIntents), zap.String("account", account.Hex()))

	if newMax == nil || newMax.Sign() <= 0 {
		return nil, fmt.Errorf("%w: max intents must be positive", model.ErrInvalidAmount)
	}
	release, err := m.deps.Session.Acquire(account, model.OpMaxIntents)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := storage.NewActivity(model.OpMaxIntents, account.Hex())
	rec.Amount = newMax.String()
	defer func() {
		if ref != nil {
			rec.TxHash = ref.Hash.Hex()
		}
		storage.Append(ctx, m.deps.Journal, logger, rec, err)
		m.deps.Metrics.Observe(model.OpMaxIntents, started, err)
	}()

	if err := m.requireOwner(ctx, account, m.deps.Ledger.IntentsOwner); err != nil {
		return nil, err
	}
	call, err := m.deps.Ledger.SetMaxIntentsCall(newMax, m.cfg.SettleGas)
	if err != nil {
		return nil, err
	}
	receipt, err := m.deps.Sender.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	logger.Info("max intents updated", zap.String("max", newMax.String()))
	return &model.TransactionRef{Hash: receipt.TxHash}, nil
}

// MaxIntents reads the per-user open intent cap.
func (m *Manager) MaxIntents(ctx context.Context) (*big.Int, error) {
	return m.deps.Ledger.MaxIntents(ctx)
}
