package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"intentLedger/internal/contracts"
	"intentLedger/internal/model"
)

// Wallet is the part of the wallet provider that submits transactions.
type Wallet interface {
	Address() common.Address
	SendTransaction(ctx context.Context, call model.Call) (model.TransactionRef, error)
}

// Receipts reads receipts and replays failed calls for their revert data.
type Receipts interface {
	ethereum.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config bounds how long the sender waits for inclusion.
type Config struct {
	InclusionTimeout time.Duration
	PollInterval     time.Duration
}

// Sender submits calls through the wallet and waits for their receipts.
// It never resubmits; a timeout leaves the transaction to the caller.
type Sender struct {
	wallet   Wallet
	receipts Receipts
	cfg      Config
	logger   *zap.Logger
}

func NewSender(wallet Wallet, receipts Receipts, cfg Config, logger *zap.Logger) *Sender {
	if cfg.InclusionTimeout <= 0 {
		cfg.InclusionTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{wallet: wallet, receipts: receipts, cfg: cfg, logger: logger}
}

// Send submits call and blocks until it is included. A failed receipt is
// returned as a *model.RevertError carrying the decoded reason.
func (s *Sender) Send(ctx context.Context, call model.Call) (*types.Receipt, error) {
	ref, err := s.wallet.SendTransaction(ctx, call)
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction submitted",
		zap.String("method", call.Method),
		zap.String("tx", ref.Hash.Hex()),
	)
	return s.Await(ctx, call, ref)
}

// Await polls for the receipt of ref until it is mined or the inclusion
// timeout passes.
func (s *Sender) Await(ctx context.Context, call model.Call, ref model.TransactionRef) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.InclusionTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.receipts.TransactionReceipt(waitCtx, ref.Hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				s.logger.Info("transaction included",
					zap.String("method", call.Method),
					zap.String("tx", ref.Hash.Hex()),
					zap.Uint64("block", receipt.BlockNumber.Uint64()),
					zap.Uint64("gas_used", receipt.GasUsed),
				)
				return receipt, nil
			}
			return receipt, s.revertError(ctx, call, ref, receipt)
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			s.logger.Warn("receipt lookup failed", zap.String("tx", ref.Hash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s after %s", model.ErrInclusionTimeout, ref.Hash.Hex(), s.cfg.InclusionTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Sender) revertError(ctx context.Context, call model.Call, ref model.TransactionRef, receipt *types.Receipt) error {
	to := call.To
	msg := ethereum.CallMsg{
		From:  s.wallet.Address(),
		To:    &to,
		Data:  call.Data,
		Value: call.Value,
	}
	_, err := s.receipts.CallContract(ctx, msg, receipt.BlockNumber)
	data, _ := contracts.RevertData(err)
	revert := contracts.NewRevertError(ref.Hash.Hex(), data)

	s.logger.Warn("transaction reverted",
		zap.String("method", call.Method),
		zap.String("tx", ref.Hash.Hex()),
		zap.String("reason", revert.Reason),
	)
	return revert
}
