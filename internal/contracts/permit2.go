package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Permit2 reads nonce state from the authorization contract.
type Permit2 struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

func NewPermit2(caller ethereum.ContractCaller, address common.Address) (*Permit2, error) {
	parsed, err := Permit2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse permit2 abi: %w", err)
	}
	return &Permit2{caller: caller, address: address, abi: parsed}, nil
}

// Address returns the authorization contract address.
func (p *Permit2) Address() common.Address {
	return p.address
}

// Nonces queries the direct per-owner counter. Deployments without the
// entry point revert or return empty data, which surfaces as an error.
func (p *Permit2) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, p.caller, p.address, p.abi, "nonces", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// AllowanceNonce reads the nonce embedded in the (owner, token, spender) allowance record.
func (p *Permit2) AllowanceNonce(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, p.caller, p.address, p.abi, "allowance", owner, token, spender)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("allowance: unexpected %d outputs", len(values))
	}
	return asBigInt(values[2])
}
