package permit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"intentLedger/internal/model"
)

// NonceSource exposes both nonce surfaces of an authorization contract.
type NonceSource interface {
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
	AllowanceNonce(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
}

// NoncePolicy adjusts a resolved nonce for the environment it targets.
type NoncePolicy interface {
	Adjust(nonce *big.Int) *big.Int
}

// ExactNonce leaves the resolved nonce untouched.
type ExactNonce struct{}

func (ExactNonce) Adjust(nonce *big.Int) *big.Int { return nonce }

// FixedOffset adds Offset to the resolved nonce. Local development nodes
// that index nonces with a lag need it.
type FixedOffset struct {
	Offset int64
}

func (p FixedOffset) Adjust(nonce *big.Int) *big.Int {
	return new(big.Int).Add(nonce, big.NewInt(p.Offset))
}

// NonceResolver determines the nonce to embed in a permit.
type NonceResolver struct {
	source NonceSource
	policy NoncePolicy
	logger *zap.Logger
}

func NewNonceResolver(source NonceSource, policy NoncePolicy, logger *zap.Logger) *NonceResolver {
	if policy == nil {
		policy = ExactNonce{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NonceResolver{source: source, policy: policy, logger: logger}
}

// Resolve queries the per-owner counter and only falls back to the
// allowance-embedded nonce when that query fails. It never guesses: if
// both surfaces fail the result is model.ErrNonceUnavailable.
func (r *NonceResolver) Resolve(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	nonce, primaryErr := r.source.Nonces(ctx, owner)
	if primaryErr == nil && nonce != nil {
		return r.policy.Adjust(nonce), nil
	}
	if primaryErr == nil {
		primaryErr = fmt.Errorf("empty nonce")
	}

	r.logger.Warn("nonce counter unavailable, reading allowance nonce",
		zap.String("owner", owner.Hex()),
		zap.Error(primaryErr),
	)

	nonce, fallbackErr := r.source.AllowanceNonce(ctx, owner, token, spender)
	if fallbackErr != nil || nonce == nil {
		if fallbackErr == nil {
			fallbackErr = fmt.Errorf("empty nonce")
		}
		return nil, fmt.Errorf("%w: nonces: %v; allowance: %v", model.ErrNonceUnavailable, primaryErr, fallbackErr)
	}
	return r.policy.Adjust(nonce), nil
}
