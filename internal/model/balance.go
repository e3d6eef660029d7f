package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Balance is the ledger's custodial balance for an account, in the token's minor unit.
type Balance struct {
	Account     common.Address `json:"account"`
	Available   *big.Int       `json:"available"`
	Locked      *big.Int       `json:"locked"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

// Total returns available + locked.
func (b Balance) Total() *big.Int {
	total := new(big.Int)
	if b.Available != nil {
		total.Add(total, b.Available)
	}
	if b.Locked != nil {
		total.Add(total, b.Locked)
	}
	return total
}
