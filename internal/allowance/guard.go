package allowance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"intentLedger/internal/model"
)

// Token is the ERC-20 surface the guard reads and approves through.
type Token interface {
	Address() common.Address
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	ApproveCall(spender common.Address, amount *big.Int, gas uint64) (model.Call, error)
}

// Sender submits a call and waits for inclusion.
type Sender interface {
	Send(ctx context.Context, call model.Call) (*types.Receipt, error)
}

// Guard makes sure a spender holds a standing token allowance before a
// permit-based pull.
type Guard struct {
	token  Token
	sender Sender
	gas    uint64
	logger *zap.Logger
}

// NewGuard binds the guard to token. gas 0 lets the wallet estimate.
func NewGuard(token Token, sender Sender, gas uint64, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{token: token, sender: sender, gas: gas, logger: logger}
}

// Ensure is a no-op when allowance(owner, spender) >= required. Otherwise
// it sends one approve(spender, MaxUint256) and waits for it; the returned
// ref is non-nil only in that case. Failures of the approval are
// model.ErrApprovalFailed and are never retried here.
func (g *Guard) Ensure(ctx context.Context, owner, spender common.Address, required *big.Int) (*model.TransactionRef, error) {
	if required == nil || required.Sign() <= 0 {
		return nil, fmt.Errorf("%w: required allowance must be positive", model.ErrInvalidAmount)
	}

	current, err := g.token.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, model.Wrap(model.ErrAllowanceUnavailable, err)
	}
	if current.Cmp(required) >= 0 {
		g.logger.Debug("allowance sufficient",
			zap.String("owner", owner.Hex()),
			zap.String("spender", spender.Hex()),
			zap.String("allowance", current.String()),
		)
		return nil, nil
	}

	g.logger.Info("allowance insufficient, approving",
		zap.String("owner", owner.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("token", g.token.Address().Hex()),
		zap.String("allowance", current.String()),
		zap.String("required", required.String()),
	)

	call, err := g.token.ApproveCall(spender, new(big.Int).Set(math.MaxBig256), g.gas)
	if err != nil {
		return nil, model.Wrap(model.ErrApprovalFailed, err)
	}
	receipt, err := g.sender.Send(ctx, call)
	if err != nil {
		return nil, model.Wrap(model.ErrApprovalFailed, err)
	}
	return &model.TransactionRef{Hash: receipt.TxHash}, nil
}
