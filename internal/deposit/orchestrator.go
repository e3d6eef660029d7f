package deposit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"intentLedger/internal/balance"
	"intentLedger/internal/contracts"
	"intentLedger/internal/metrics"
	"intentLedger/internal/model"
	"intentLedger/internal/permit"
	"intentLedger/internal/session"
	"intentLedger/internal/storage"
	"intentLedger/internal/wallet"
)

// Ledger encodes the deposit and withdraw calls.
type Ledger interface {
	Contracts() model.Contracts
	PermitDepositCall(amount *big.Int, deadline uint64, nonce *big.Int, encoded, signature []byte, gas uint64) (model.Call, error)
	WithdrawCall(amount *big.Int, gas uint64) (model.Call, error)
}

type NonceResolver interface {
	Resolve(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
}

type AllowanceGuard interface {
	Ensure(ctx context.Context, owner, spender common.Address, required *big.Int) (*model.TransactionRef, error)
}

type Sender interface {
	Send(ctx context.Context, call model.Call) (*types.Receipt, error)
}

// Config carries the tunables of the deposit flow.
type Config struct {
	DomainName  string
	DepositGas  uint64
	WithdrawGas uint64
}

// Deps are the collaborators an Orchestrator drives. Journal and Metrics
// are optional.
type Deps struct {
	Wallet    wallet.Wallet
	Ledger    Ledger
	Nonces    NonceResolver
	Allowance AllowanceGuard
	Sender    Sender
	Balances  *balance.View
	Session   *session.Guard
	Journal   storage.Journal
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Result describes a completed deposit or withdrawal.
type Result struct {
	Tx       model.TransactionRef
	Approval *model.TransactionRef
	Nonce    *big.Int
	Before   model.Balance
	After    model.Balance

	// Permit is the signed authorization a deposit submitted; empty for
	// withdrawals.
	Permit model.SignedPermit
	// DryRunErr is the simulation failure that did not block submission.
	DryRunErr error
}

// Orchestrator runs permit-based deposits and withdrawals for the wallet's
// account, one at a time.
type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Wallet == nil || deps.Ledger == nil || deps.Nonces == nil || deps.Allowance == nil || deps.Sender == nil || deps.Balances == nil {
		return nil, fmt.Errorf("deposit orchestrator: missing dependency")
	}
	if deps.Session == nil {
		deps.Session = session.NewGuard()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DomainName == "" {
		cfg.DomainName = permit.DefaultDomainName
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}, nil
}

// Deposit authorizes a one-time transfer of amount with an off-chain
// permit and deposits it into the ledger. Stages run in order: nonce,
// signature, allowance, dry-run, submission, inclusion, balance refresh.
// A past deadline or non-positive amount fails before anything is signed.
func (o *Orchestrator) Deposit(ctx context.Context, amount *big.Int, deadline uint64) (result *Result, err error) {
	started := time.Now()
	owner := o.deps.Wallet.Address()
	c := o.deps.Ledger.Contracts()
	logger := o.deps.Logger.With(zap.String("op", model.OpDeposit), zap.String("account", owner.Hex()))

	if err := permit.Validate(model.Permit{Amount: amount, Deadline: deadline}, o.now()); err != nil {
		o.deps.Metrics.Observe(model.OpDeposit, started, err)
		return nil, err
	}

	release, err := o.deps.Session.Acquire(owner, model.OpDeposit)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := storage.NewActivity(model.OpDeposit, owner.Hex())
	rec.Amount = amount.String()
	defer func() {
		if result != nil {
			rec.TxHash = result.Tx.Hash.Hex()
			if result.DryRunErr != nil {
				rec.Detail = "dry-run: " + result.DryRunErr.Error()
			}
		}
		storage.Append(ctx, o.deps.Journal, logger, rec, err)
		o.deps.Metrics.Observe(model.OpDeposit, started, err)
	}()

	result = &Result{}
	before, beforeErr := o.deps.Balances.Refresh(ctx, owner)
	if beforeErr != nil {
		logger.Warn("balance before deposit unavailable", zap.Error(beforeErr))
	} else {
		result.Before = before
	}

	nonce, err := o.deps.Nonces.Resolve(ctx, owner, c.Token, c.Ledger)
	if err != nil {
		return nil, err
	}
	result.Nonce = nonce

	p := model.Permit{
		Owner:    owner,
		Spender:  c.Ledger,
		Token:    c.Token,
		Amount:   new(big.Int).Set(amount),
		Nonce:    nonce,
		Deadline: deadline,
	}
	typed, err := permit.Build(permit.Domain{
		Name:              o.cfg.DomainName,
		ChainID:           c.ChainID,
		VerifyingContract: c.Authorization,
	}, p, o.now())
	if err != nil {
		return nil, err
	}
	signature, err := o.deps.Wallet.SignTypedData(ctx, typed)
	if err != nil {
		return nil, fmt.Errorf("sign permit: %w", err)
	}
	result.Permit = model.SignedPermit{Permit: p, Signature: signature}
	logger.Info("permit signed", zap.String("amount", amount.String()), zap.String("nonce", nonce.String()), zap.Uint64("deadline", deadline))

	approval, err := o.deps.Allowance.Ensure(ctx, owner, c.Authorization, amount)
	if err != nil {
		return nil, model.Wrap(model.ErrInsufficientAllowance, err)
	}
	if approval != nil {
		result.Approval = approval
		o.deps.Metrics.ApprovalSent()
		approveRec := storage.NewActivity(model.OpApprove, owner.Hex())
		approveRec.TxHash = approval.Hash.Hex()
		storage.Append(ctx, o.deps.Journal, logger, approveRec, nil)
	}

	encoded, err := contracts.EncodeTokenPermissions(c.Token, amount)
	if err != nil {
		return nil, err
	}
	call, err := o.deps.Ledger.PermitDepositCall(amount, deadline, nonce, encoded, result.Permit.Signature, o.cfg.DepositGas)
	if err != nil {
		return nil, err
	}

	if _, dryErr := o.deps.Wallet.Call(ctx, call); dryErr != nil {
		result.DryRunErr = describeCallError(dryErr)
		o.deps.Metrics.DryRunFailed()
		logger.Warn("deposit dry-run failed; submitting anyway", zap.Error(result.DryRunErr))
	}

	receipt, err := o.deps.Sender.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	result.Tx = model.TransactionRef{Hash: receipt.TxHash}

	after, err := o.deps.Balances.Refresh(ctx, owner)
	if err != nil {
		logger.Warn("balance refresh after deposit failed", zap.Error(err))
		return result, nil
	}
	result.After = after
	if beforeErr == nil {
		delta := new(big.Int).Sub(after.Available, before.Available)
		if delta.Cmp(amount) != 0 {
			logger.Warn("available balance moved by a different amount than deposited",
				zap.String("amount", amount.String()),
				zap.String("delta", delta.String()),
			)
		}
	}
	logger.Info("deposit confirmed", zap.String("tx", result.Tx.Hash.Hex()), zap.String("available", after.Available.String()))
	return result, nil
}

// Withdraw moves amount from the available ledger balance back to the wallet.
func (o *Orchestrator) Withdraw(ctx context.Context, amount *big.Int) (result *Result, err error) {
	started := time.Now()
	owner := o.deps.Wallet.Address()
	logger := o.deps.Logger.With(zap.String("op", model.OpWithdraw), zap.String("account", owner.Hex()))

	if amount == nil || amount.Sign() <= 0 {
		err := fmt.Errorf("%w: amount must be positive", model.ErrInvalidAmount)
		o.deps.Metrics.Observe(model.OpWithdraw, started, err)
		return nil, err
	}

	release, err := o.deps.Session.Acquire(owner, model.OpWithdraw)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := storage.NewActivity(model.OpWithdraw, owner.Hex())
	rec.Amount = amount.String()
	defer func() {
		if result != nil {
			rec.TxHash = result.Tx.Hash.Hex()
		}
		storage.Append(ctx, o.deps.Journal, logger, rec, err)
		o.deps.Metrics.Observe(model.OpWithdraw, started, err)
	}()

	before, err := o.deps.Balances.Refresh(ctx, owner)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(before.Available) > 0 {
		return nil, fmt.Errorf("%w: withdraw %s, available %s", model.ErrInsufficientAvailableBalance, amount, before.Available)
	}

	call, err := o.deps.Ledger.WithdrawCall(amount, o.cfg.WithdrawGas)
	if err != nil {
		return nil, err
	}
	receipt, err := o.deps.Sender.Send(ctx, call)
	if err != nil {
		return nil, err
	}
	result = &Result{Tx: model.TransactionRef{Hash: receipt.TxHash}, Before: before}

	after, err := o.deps.Balances.Refresh(ctx, owner)
	if err != nil {
		logger.Warn("balance refresh after withdraw failed", zap.Error(err))
		return result, nil
	}
	result.After = after
	logger.Info("withdraw confirmed", zap.String("tx", result.Tx.Hash.Hex()), zap.String("available", after.Available.String()))
	return result, nil
}

func describeCallError(err error) error {
	if data, ok := contracts.RevertData(err); ok {
		return contracts.NewRevertError("", data)
	}
	var revert *model.RevertError
	if errors.As(err, &revert) {
		return revert
	}
	return err
}
