package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Contracts is the explicit deployment the client talks to.
type Contracts struct {
	Ledger        common.Address
	Token         common.Address
	Authorization common.Address
	Intents       common.Address
	Settlement    common.Address
	ChainID       *big.Int
}
