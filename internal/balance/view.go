package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/model"
)

// Ledger reads custodial balances.
type Ledger interface {
	GetUserBalance(ctx context.Context, account common.Address) (*big.Int, *big.Int, error)
}

// Token reads wallet balances outside the ledger.
type Token interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// View caches ledger balances per account. Cached values are only what
// the last Refresh observed; mutating operations must refresh explicitly.
type View struct {
	ledger Ledger
	token  Token
	now    func() time.Time

	mu    sync.RWMutex
	cache map[common.Address]model.Balance
}

func NewView(ledger Ledger, token Token) *View {
	return &View{
		ledger: ledger,
		token:  token,
		now:    time.Now,
		cache:  make(map[common.Address]model.Balance),
	}
}

// Refresh reads the ledger balance of account and replaces the cached copy.
func (v *View) Refresh(ctx context.Context, account common.Address) (model.Balance, error) {
	available, locked, err := v.ledger.GetUserBalance(ctx, account)
	if err != nil {
		return model.Balance{}, fmt.Errorf("get balance %s: %w", account.Hex(), err)
	}
	b := model.Balance{
		Account:     account,
		Available:   available,
		Locked:      locked,
		RefreshedAt: v.now().UTC(),
	}

	v.mu.Lock()
	v.cache[account] = b
	v.mu.Unlock()
	return copyBalance(b), nil
}

// Cached returns the last refreshed balance of account.
func (v *View) Cached(account common.Address) (model.Balance, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.cache[account]
	if !ok {
		return model.Balance{}, false
	}
	return copyBalance(b), true
}

// TokenBalance returns the token balance account holds outside the ledger.
func (v *View) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if v.token == nil {
		return nil, fmt.Errorf("token reader not configured")
	}
	amount, err := v.token.BalanceOf(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", account.Hex(), err)
	}
	return amount, nil
}

func copyBalance(b model.Balance) model.Balance {
	out := b
	if b.Available != nil {
		out.Available = new(big.Int).Set(b.Available)
	}
	if b.Locked != nil {
		out.Locked = new(big.Int).Set(b.Locked)
	}
	return out
}
