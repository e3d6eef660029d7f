package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ledgerABIJSON covers the balance ledger, the intents engine and the
// settlement executor. Deployments may split them across addresses; the
// method set is disjoint so one ABI serves all three.
const ledgerABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "user", "type": "address"}],
    "name": "getUserBalance",
    "outputs": [
      {"internalType": "uint256", "name": "availableBalance", "type": "uint256"},
      {"internalType": "uint256", "name": "lockedBalance", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "amount", "type": "uint256"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"},
      {"internalType": "uint256", "name": "nonce", "type": "uint256"},
      {"internalType": "bytes", "name": "permitTransferFrom", "type": "bytes"},
      {"internalType": "bytes", "name": "signature", "type": "bytes"}
    ],
    "name": "permitDeposit",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}],
    "name": "withdraw",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "amount", "type": "uint256"},
      {"internalType": "string", "name": "intentType", "type": "string"},
      {"internalType": "bytes", "name": "metadata", "type": "bytes"}
    ],
    "name": "submitIntent",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "user", "type": "address"}],
    "name": "getUserIntents",
    "outputs": [
      {
        "components": [
          {"internalType": "address", "name": "user", "type": "address"},
          {"internalType": "uint256", "name": "amount", "type": "uint256"},
          {"internalType": "string", "name": "intentType", "type": "string"},
          {"internalType": "bytes", "name": "metadata", "type": "bytes"},
          {"internalType": "bool", "name": "isExecuted", "type": "bool"},
          {"internalType": "uint256", "name": "timestamp", "type": "uint256"}
        ],
        "internalType": "struct IntentsEngine.Intent[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "maxIntents",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "newMax", "type": "uint256"}],
    "name": "setMaxIntents",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "user", "type": "address"},
      {"internalType": "uint256", "name": "intentIndex", "type": "uint256"},
      {"internalType": "int256", "name": "pnl", "type": "int256"}
    ],
    "name": "settleIntent",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address[]", "name": "users", "type": "address[]"},
      {"internalType": "uint256[]", "name": "intentIndices", "type": "uint256[]"},
      {"internalType": "int256[]", "name": "pnls", "type": "int256[]"}
    ],
    "name": "batchSettleIntents",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "owner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "account", "type": "address"}],
    "name": "OwnableUnauthorizedAccount",
    "type": "error"
  },
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "SafeERC20FailedOperation",
    "type": "error"
  }
]`

var (
	ledgerABI     abi.ABI
	ledgerABIOnce sync.Once
	ledgerABIErr  error
)

// LedgerABI returns the parsed ledger/intents/settlement ABI.
func LedgerABI() (abi.ABI, error) {
	ledgerABIOnce.Do(func() {
		ledgerABI, ledgerABIErr = abi.JSON(strings.NewReader(ledgerABIJSON))
	})
	return ledgerABI, ledgerABIErr
}
