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

// Ledger reads and encodes calls for the balance ledger, the intents
// engine and the settlement executor.
type Ledger struct {
	caller    ethereum.ContractCaller
	contracts model.Contracts
	abi       abi.ABI
}

type intentTuple struct {
	User       common.Address
	Amount     *big.Int
	IntentType string
	Metadata   []byte
	IsExecuted bool
	Timestamp  *big.Int
}

func NewLedger(caller ethereum.ContractCaller, contracts model.Contracts) (*Ledger, error) {
	parsed, err := LedgerABI()
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}
	return &Ledger{caller: caller, contracts: contracts, abi: parsed}, nil
}

// Contracts returns the deployment this ledger is bound to.
func (l *Ledger) Contracts() model.Contracts {
	return l.contracts
}

// GetUserBalance returns the available and locked balance of account.
func (l *Ledger) GetUserBalance(ctx context.Context, account common.Address) (*big.Int, *big.Int, error) {
	values, err := callMethod(ctx, l.caller, l.contracts.Ledger, l.abi, "getUserBalance", account)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("getUserBalance: unexpected %d outputs", len(values))
	}
	available, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("available: %w", err)
	}
	locked, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("locked: %w", err)
	}
	return available, locked, nil
}

// GetUserIntents returns every intent of account, indexed by ledger position.
func (l *Ledger) GetUserIntents(ctx context.Context, account common.Address) ([]model.Intent, error) {
	values, err := callMethod(ctx, l.caller, l.contracts.Intents, l.abi, "getUserIntents", account)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getUserIntents: unexpected %d outputs", len(values))
	}
	tuples := *abi.ConvertType(values[0], new([]intentTuple)).(*[]intentTuple)

	intents := make([]model.Intent, 0, len(tuples))
	for i, t := range tuples {
		owner := t.User
		if owner == (common.Address{}) {
			owner = account
		}
		var ts uint64
		if t.Timestamp != nil && t.Timestamp.IsUint64() {
			ts = t.Timestamp.Uint64()
		}
		amount := new(big.Int)
		if t.Amount != nil {
			amount.Set(t.Amount)
		}
		intents = append(intents, model.Intent{
			Owner:      owner,
			Index:      uint64(i),
			Amount:     amount,
			IntentType: t.IntentType,
			Metadata:   append([]byte(nil), t.Metadata...),
			IsExecuted: t.IsExecuted,
			Timestamp:  ts,
		})
	}
	return intents, nil
}

// SettlementOwner returns the account authorized to settle intents.
func (l *Ledger) SettlementOwner(ctx context.Context) (common.Address, error) {
	return l.owner(ctx, l.contracts.Settlement)
}

// IntentsOwner returns the account authorized to configure the intents engine.
func (l *Ledger) IntentsOwner(ctx context.Context) (common.Address, error) {
	return l.owner(ctx, l.contracts.Intents)
}

func (l *Ledger) owner(ctx context.Context, at common.Address) (common.Address, error) {
	values, err := callMethod(ctx, l.caller, at, l.abi, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// MaxIntents returns the per-user open intent cap.
func (l *Ledger) MaxIntents(ctx context.Context) (*big.Int, error) {
	values, err := callMethod(ctx, l.caller, l.contracts.Intents, l.abi, "maxIntents")
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PermitDepositCall encodes permitDeposit(amount, deadline, nonce, permitTransferFrom, signature).
func (l *Ledger) PermitDepositCall(amount *big.Int, deadline uint64, nonce *big.Int, encoded, signature []byte, gas uint64) (model.Call, error) {
	return buildCall(l.contracts.Ledger, l.abi, gas, "permitDeposit",
		amount, new(big.Int).SetUint64(deadline), nonce, encoded, signature)
}

// WithdrawCall encodes withdraw(amount).
func (l *Ledger) WithdrawCall(amount *big.Int, gas uint64) (model.Call, error) {
	return buildCall(l.contracts.Ledger, l.abi, gas, "withdraw", amount)
}

// SubmitIntentCall encodes submitIntent(amount, intentType, metadata).
func (l *Ledger) SubmitIntentCall(amount *big.Int, intentType string, metadata []byte, gas uint64) (model.Call, error) {
	if metadata == nil {
		metadata = []byte{}
	}
	return buildCall(l.contracts.Intents, l.abi, gas, "submitIntent", amount, intentType, metadata)
}

// SettleIntentCall encodes settleIntent(user, intentIndex, pnl).
func (l *Ledger) SettleIntentCall(user common.Address, index uint64, pnl *big.Int, gas uint64) (model.Call, error) {
	return buildCall(l.contracts.Settlement, l.abi, gas, "settleIntent", user, new(big.Int).SetUint64(index), pnl)
}

// BatchSettleCall encodes batchSettleIntents(users, intentIndices, pnls).
func (l *Ledger) BatchSettleCall(batch model.SettlementBatch, gas uint64) (model.Call, error) {
	indices := make([]*big.Int, len(batch.IntentIndices))
	for i, idx := range batch.IntentIndices {
		indices[i] = new(big.Int).SetUint64(idx)
	}
	return buildCall(l.contracts.Settlement, l.abi, gas, "batchSettleIntents", batch.Users, indices, batch.PnLs)
}

// SetMaxIntentsCall encodes setMaxIntents(newMax).
func (l *Ledger) SetMaxIntentsCall(newMax *big.Int, gas uint64) (model.Call, error) {
	return buildCall(l.contracts.Intents, l.abi, gas, "setMaxIntents", newMax)
}
