package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"intentLedger/internal/model"
)

// Wallet is the signing and submission provider the client drives.
// Implementations return model.ErrWalletRejected when the user declines a
// signature or transaction; that outcome is normal and never retried.
type Wallet interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	SendTransaction(ctx context.Context, call model.Call) (model.TransactionRef, error)
	// Call simulates call read-only from the wallet's address.
	Call(ctx context.Context, call model.Call) ([]byte, error)
}
