package contractstest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"intentLedger/internal/model"
)

// Wallet signs with a real key and submits to a Sim.
type Wallet struct {
	sim *Sim
	key *ecdsa.PrivateKey

	mu         sync.Mutex
	RejectSign bool
	RejectSend func(call model.Call) bool
	signs      int
}

// NewWallet generates a key and binds it to sim.
func NewWallet(sim *Sim) *Wallet {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Wallet{sim: sim, key: key}
}

func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// Signs counts signatures produced.
func (w *Wallet) Signs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signs
}

func (w *Wallet) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RejectSign {
		return nil, model.ErrWalletRejected
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	w.signs++

	w.sim.mu.Lock()
	w.sim.signed[w.Address()] = append(w.sim.signed[w.Address()], data)
	w.sim.mu.Unlock()
	return sig, nil
}

func (w *Wallet) SendTransaction(ctx context.Context, call model.Call) (model.TransactionRef, error) {
	w.mu.Lock()
	reject := w.RejectSend
	w.mu.Unlock()
	if reject != nil && reject(call) {
		return model.TransactionRef{}, model.ErrWalletRejected
	}
	hash, err := w.sim.submit(w.Address(), call)
	if err != nil {
		return model.TransactionRef{}, err
	}
	return model.TransactionRef{Hash: hash}, nil
}

func (w *Wallet) Call(ctx context.Context, call model.Call) ([]byte, error) {
	to := call.To
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	return w.sim.CallContract(ctx, ethereum.CallMsg{From: w.Address(), To: &to, Data: call.Data, Value: value}, nil)
}
