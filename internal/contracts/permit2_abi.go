package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// permit2ABIJSON lists both nonce surfaces seen across authorization
// deployments: a direct per-owner counter and the allowance-embedded nonce.
const permit2ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}], "name": "nonces", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [
      {"internalType": "address", "name": "user", "type": "address"},
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "address", "name": "spender", "type": "address"}
    ],
    "name": "allowance",
    "outputs": [
      {"internalType": "uint160", "name": "amount", "type": "uint160"},
      {"internalType": "uint48", "name": "expiration", "type": "uint48"},
      {"internalType": "uint48", "name": "nonce", "type": "uint48"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"inputs": [], "name": "DOMAIN_SEPARATOR", "outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "deadline", "type": "uint256"}], "name": "AllowanceExpired", "type": "error"},
  {"inputs": [], "name": "ExcessiveInvalidation", "type": "error"},
  {"inputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "InsufficientAllowance", "type": "error"},
  {"inputs": [{"internalType": "uint256", "name": "maxAmount", "type": "uint256"}], "name": "InvalidAmount", "type": "error"},
  {"inputs": [], "name": "InvalidContractSignature", "type": "error"},
  {"inputs": [], "name": "InvalidNonce", "type": "error"},
  {"inputs": [], "name": "InvalidSignature", "type": "error"},
  {"inputs": [], "name": "InvalidSignatureLength", "type": "error"},
  {"inputs": [], "name": "InvalidSigner", "type": "error"},
  {"inputs": [], "name": "LengthMismatch", "type": "error"},
  {"inputs": [{"internalType": "uint256", "name": "signatureDeadline", "type": "uint256"}], "name": "SignatureExpired", "type": "error"}
]`

var (
	permit2ABI     abi.ABI
	permit2ABIOnce sync.Once
	permit2ABIErr  error
)

// Permit2ABI returns the parsed authorization contract ABI.
func Permit2ABI() (abi.ABI, error) {
	permit2ABIOnce.Do(func() {
		permit2ABI, permit2ABIErr = abi.JSON(strings.NewReader(permit2ABIJSON))
	})
	return permit2ABI, permit2ABIErr
}
