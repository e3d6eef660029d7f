package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is a contract invocation, either simulated or sent as a transaction.
type Call struct {
	To     common.Address
	Data   []byte
	Value  *big.Int
	Gas    uint64
	Method string
}

// TransactionRef identifies a submitted transaction.
type TransactionRef struct {
	Hash common.Hash `json:"hash"`
}
