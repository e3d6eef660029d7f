package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Permit is a single-use transfer authorization. It is bound 1:1 to the
// signature produced over its typed-data encoding.
type Permit struct {
	Owner    common.Address `json:"owner"`
	Spender  common.Address `json:"spender"`
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	Nonce    *big.Int       `json:"nonce"`
	Deadline uint64         `json:"deadline"`
}

// SignedPermit pairs a permit with the wallet signature over it.
type SignedPermit struct {
	Permit    Permit `json:"permit"`
	Signature []byte `json:"signature"`
}
