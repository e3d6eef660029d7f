package intent

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/model"
)

// Listed is an intent with its metadata decoded where possible.
type Listed struct {
	model.Intent
	State       model.IntentState    `json:"state"`
	Decoded     *model.OrderMetadata `json:"decoded,omitempty"`
	DecodeError string               `json:"decode_error,omitempty"`
}

// Reader lists the intents of an account.
type Reader interface {
	GetUserIntents(ctx context.Context, account common.Address) ([]model.Intent, error)
}

// List returns every intent of account.
func (m *Manager) List(ctx context.Context, account common.Address) ([]Listed, error) {
	return ListIntents(ctx, m.deps.Ledger, account)
}

// ListIntents lists the intents of account with decoded metadata.
// Undecodable metadata is reported on the entry and does not fail the
// listing.
func ListIntents(ctx context.Context, reader Reader, account common.Address) ([]Listed, error) {
	intents, err := reader.GetUserIntents(ctx, account)
	if err != nil {
		return nil, err
	}
	out := make([]Listed, 0, len(intents))
	for _, in := range intents {
		entry := Listed{Intent: in, State: in.State()}
		if meta, err := DecodeMetadata(in.Metadata); err != nil {
			entry.DecodeError = err.Error()
		} else {
			entry.Decoded = &meta
		}
		out = append(out, entry)
	}
	return out, nil
}

// PnLFunc picks the settlement PnL of an intent.
type PnLFunc func(in model.Intent) *big.Int

// FixedPnL pays buy on BUY intents and sell on every other intent type.
func FixedPnL(buy, sell *big.Int) PnLFunc {
	return func(in model.Intent) *big.Int {
		if strings.EqualFold(in.IntentType, "BUY") {
			return new(big.Int).Set(buy)
		}
		return new(big.Int).Set(sell)
	}
}

// PendingBatch builds a settlement batch of every submitted intent of users.
func (m *Manager) PendingBatch(ctx context.Context, users []common.Address, pnl PnLFunc) (model.SettlementBatch, error) {
	var batch model.SettlementBatch
	seen := make(map[common.Address]struct{}, len(users))
	for _, user := range users {
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}

		intents, err := m.deps.Ledger.GetUserIntents(ctx, user)
		if err != nil {
			return model.SettlementBatch{}, err
		}
		for _, in := range intents {
			if in.IsExecuted {
				continue
			}
			batch.Append(user, in.Index, pnl(in))
		}
	}
	return batch, nil
}
