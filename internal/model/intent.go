package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IntentState is the lifecycle state of an intent.
type IntentState string

const (
	IntentSubmitted IntentState = "submitted"
	IntentExecuted  IntentState = "executed"
)

// Intent is a ledger-owned request that locks balance until settlement.
// Index is the position assigned by the ledger and is never reused.
type Intent struct {
	Owner      common.Address `json:"owner"`
	Index      uint64         `json:"index"`
	Amount     *big.Int       `json:"amount"`
	IntentType string         `json:"intent_type"`
	Metadata   []byte         `json:"metadata"`
	IsExecuted bool           `json:"is_executed"`
	Timestamp  uint64         `json:"timestamp"`
}

// State derives the lifecycle state from the executed flag.
func (i Intent) State() IntentState {
	if i.IsExecuted {
		return IntentExecuted
	}
	return IntentSubmitted
}
