package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var tokenPermissionsArgs = mustArguments("address", "uint256")

// EncodeTokenPermissions returns abi.encode(token, amount), the payload the
// ledger forwards to the authorization contract alongside the signature.
func EncodeTokenPermissions(token common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("amount is nil")
	}
	return tokenPermissionsArgs.Pack(token, amount)
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
