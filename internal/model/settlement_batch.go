package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementBatch settles many (user, intent) pairs atomically. The three
// slices are parallel and must have equal length.
type SettlementBatch struct {
	Users         []common.Address `json:"users"`
	IntentIndices []uint64         `json:"intent_indices"`
	PnLs          []*big.Int       `json:"pnls"`
}

// Len returns the number of entries, or -1 when the slices disagree.
func (b SettlementBatch) Len() int {
	n := len(b.Users)
	if len(b.IntentIndices) != n || len(b.PnLs) != n {
		return -1
	}
	return n
}

// Validate checks the parallel-array shape without touching the network.
func (b SettlementBatch) Validate() error {
	n := b.Len()
	if n < 0 {
		return fmt.Errorf("%w: users=%d indices=%d pnls=%d", ErrMalformedBatch, len(b.Users), len(b.IntentIndices), len(b.PnLs))
	}
	if n == 0 {
		return fmt.Errorf("%w: empty batch", ErrMalformedBatch)
	}

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		if b.PnLs[i] == nil {
			return fmt.Errorf("%w: nil pnl at position %d", ErrMalformedBatch, i)
		}
		key := fmt.Sprintf("%s:%d", b.Users[i].Hex(), b.IntentIndices[i])
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate entry %s", ErrMalformedBatch, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Append adds one entry to every slice.
func (b *SettlementBatch) Append(user common.Address, index uint64, pnl *big.Int) {
	b.Users = append(b.Users, user)
	b.IntentIndices = append(b.IntentIndices, index)
	b.PnLs = append(b.PnLs, pnl)
}
