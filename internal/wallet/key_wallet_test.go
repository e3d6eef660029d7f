package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"intentLedger/internal/model"
)

type stubBackend struct {
	sent     []*types.Transaction
	estimate uint64
}

func (b *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return msg.Data, nil
}

func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return uint64(len(b.sent)), nil
}

func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return b.estimate, nil
}

func (b *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Ping": {{Name: "value", Type: "uint256"}},
		},
		PrimaryType: "Ping",
		Domain: apitypes.TypedDataDomain{
			Name:              "Test",
			ChainId:           math.NewHexOrDecimal256(31337),
			VerifyingContract: "0x000000000022D473030F116dDEE9F6B43aC78BA3",
		},
		Message: apitypes.TypedDataMessage{"value": "7"},
	}
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := NewKeyWallet(key, big.NewInt(31337), &stubBackend{}, nil, nil)
	require.NoError(t, err)

	data := testTypedData()
	sig, err := w.SignTypedData(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	digest, _, err := apitypes.TypedDataAndHash(data)
	require.NoError(t, err)
	recoverable := append([]byte(nil), sig...)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(digest, recoverable)
	require.NoError(t, err)
	require.Equal(t, w.Address(), crypto.PubkeyToAddress(*pub))
}

func TestDeclinedConfirmationIsWalletRejected(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := &stubBackend{}
	decline := func(ctx context.Context, prompt string) error { return errors.New("no") }
	w, err := NewKeyWallet(key, big.NewInt(1), backend, decline, nil)
	require.NoError(t, err)

	_, err = w.SignTypedData(context.Background(), testTypedData())
	require.ErrorIs(t, err, model.ErrWalletRejected)

	_, err = w.SendTransaction(context.Background(), model.Call{To: common.HexToAddress("0x01"), Method: "withdraw"})
	require.ErrorIs(t, err, model.ErrWalletRejected)
	require.Empty(t, backend.sent)
}

func TestSendTransactionUsesFixedGasOrEstimate(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := &stubBackend{estimate: 42_000}
	w, err := NewKeyWallet(key, big.NewInt(31337), backend, nil, nil)
	require.NoError(t, err)

	to := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	ref, err := w.SendTransaction(context.Background(), model.Call{To: to, Data: []byte{1, 2}, Gas: 500_000, Method: "withdraw"})
	require.NoError(t, err)
	require.Equal(t, backend.sent[0].Hash(), ref.Hash)
	require.Equal(t, uint64(500_000), backend.sent[0].Gas())
	require.Equal(t, to, *backend.sent[0].To())

	_, err = w.SendTransaction(context.Background(), model.Call{To: to, Method: "approve"})
	require.NoError(t, err)
	require.Equal(t, uint64(42_000), backend.sent[1].Gas())
	require.Equal(t, uint64(1), backend.sent[1].Nonce())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), backend.sent[1])
	require.NoError(t, err)
	require.Equal(t, w.Address(), sender)
}

func TestParseHexKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	parsed, err := ParseHexKey("0x" + hexKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))

	_, err = ParseHexKey("  ")
	require.Error(t, err)
}
