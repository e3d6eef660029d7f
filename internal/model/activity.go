package model

import "time"

// Activity operation names.
const (
	OpApprove     = "approve"
	OpDeposit     = "deposit"
	OpWithdraw    = "withdraw"
	OpSubmit      = "submit_intent"
	OpSettle      = "settle_intent"
	OpSettleBatch = "batch_settle_intents"
	OpMaxIntents  = "set_max_intents"
)

// ActivityRecord journals one mutating operation.
type ActivityRecord struct {
	ID      string    `json:"id"`
	Op      string    `json:"op"`
	Account string    `json:"account"`
	Amount  string    `json:"amount,omitempty"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}
