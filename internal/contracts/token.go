package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/model"
)

// Token reads and encodes calls for the deposited ERC20 token.
type Token struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

func NewToken(caller ethereum.ContractCaller, address common.Address) (*Token, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Token{caller: caller, address: address, abi: parsed}, nil
}

// Address returns the token contract address.
func (t *Token) Address() common.Address {
	return t.address
}

// BalanceOf returns the wallet balance of account.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance returns the standing approval of owner for spender.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Decimals returns the token's decimals.
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "decimals")
	if err != nil {
		return 0, err
	}
	v, err := asBigInt(values[0])
	if err != nil {
		return 0, err
	}
	return uint8(v.Uint64()), nil
}

// ApproveCall encodes approve(spender, amount).
func (t *Token) ApproveCall(spender common.Address, amount *big.Int, gas uint64) (model.Call, error) {
	return buildCall(t.address, t.abi, gas, "approve", spender, amount)
}
