package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"intentLedger/internal/contracts"
	"intentLedger/internal/model"
)

// Backend is the subset of the chain client a KeyWallet needs.
type Backend interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Confirm asks the operator to approve a signature or transaction.
// Returning model.ErrWalletRejected declines it.
type Confirm func(ctx context.Context, prompt string) error

// KeyWallet signs with a local secp256k1 key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
	confirm Confirm
	logger  *zap.Logger
}

// NewKeyWallet builds a wallet; confirm may be nil to auto-approve.
func NewKeyWallet(key *ecdsa.PrivateKey, chainID *big.Int, backend Backend, confirm Confirm, logger *zap.Logger) (*KeyWallet, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		backend: backend,
		confirm: confirm,
		logger:  logger,
	}, nil
}

// Address returns the account controlled by the key.
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// SignTypedData signs the EIP-712 digest of data. V is 27/28.
func (w *KeyWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := w.ask(ctx, fmt.Sprintf("sign %s for %s", data.PrimaryType, data.Domain.VerifyingContract)); err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SendTransaction signs and broadcasts call as a legacy transaction.
func (w *KeyWallet) SendTransaction(ctx context.Context, call model.Call) (model.TransactionRef, error) {
	if err := w.ask(ctx, fmt.Sprintf("send %s to %s", call.Method, call.To.Hex())); err != nil {
		return model.TransactionRef{}, err
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return model.TransactionRef{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return model.TransactionRef{}, fmt.Errorf("suggest gas price: %w", err)
	}

	gas := call.Gas
	if gas == 0 {
		to := call.To
		gas, err = w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: call.Data, Value: value})
		if err != nil {
			if data, ok := contracts.RevertData(err); ok {
				return model.TransactionRef{}, contracts.NewRevertError("", data)
			}
			return model.TransactionRef{}, fmt.Errorf("estimate gas %s: %w", call.Method, err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return model.TransactionRef{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return model.TransactionRef{}, fmt.Errorf("send %s: %w", call.Method, err)
	}

	w.logger.Debug("transaction sent",
		zap.String("method", call.Method),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return model.TransactionRef{Hash: signed.Hash()}, nil
}

// Call simulates call from the wallet's address against the latest state.
func (w *KeyWallet) Call(ctx context.Context, call model.Call) ([]byte, error) {
	to := call.To
	return w.backend.CallContract(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Data:  call.Data,
		Value: call.Value,
	}, nil)
}

func (w *KeyWallet) ask(ctx context.Context, prompt string) error {
	if w.confirm == nil {
		return nil
	}
	if err := w.confirm(ctx, prompt); err != nil {
		return model.Wrap(model.ErrWalletRejected, err)
	}
	return nil
}
