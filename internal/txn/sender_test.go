package txn

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"intentLedger/internal/contracts"
	"intentLedger/internal/contracts/contractstest"
	"intentLedger/internal/model"
)

func newTestSender(t *testing.T) (*Sender, *contractstest.Sim, *contractstest.Wallet, *contracts.Ledger) {
	t.Helper()
	sim := contractstest.New(common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	w := contractstest.NewWallet(sim)
	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	require.NoError(t, err)
	sender := NewSender(w, sim, Config{InclusionTimeout: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond}, nil)
	return sender, sim, w, ledger
}

func TestSendReturnsSuccessfulReceipt(t *testing.T) {
	sender, sim, w, ledger := newTestSender(t)
	sim.Credit(w.Address(), 100, 0)

	call, err := ledger.WithdrawCall(big.NewInt(30), 500_000)
	require.NoError(t, err)
	receipt, err := sender.Send(context.Background(), call)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	available, _ := sim.Balances(w.Address())
	require.Equal(t, int64(70), available.Int64())
}

func TestSendDecodesRevertReason(t *testing.T) {
	sender, _, _, ledger := newTestSender(t)

	call, err := ledger.WithdrawCall(big.NewInt(30), 500_000)
	require.NoError(t, err)
	_, err = sender.Send(context.Background(), call)
	require.ErrorIs(t, err, model.ErrTransactionReverted)

	var revert *model.RevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, "Insufficient available balance", revert.Reason)
	require.NotEmpty(t, revert.TxHash)
}

func TestSendMapsOwnableRevertToUnauthorizedSettler(t *testing.T) {
	sender, _, w, ledger := newTestSender(t)

	call, err := ledger.SettleIntentCall(w.Address(), 0, big.NewInt(5), 500_000)
	require.NoError(t, err)
	_, err = sender.Send(context.Background(), call)
	require.ErrorIs(t, err, model.ErrUnauthorizedSettler)
	require.Equal(t, model.ClassOnChain, model.Classify(err))
}

func TestAwaitTimesOutWithoutResubmitting(t *testing.T) {
	sender, sim, w, ledger := newTestSender(t)
	sim.Credit(w.Address(), 100, 0)
	sim.HoldReceipts = true

	call, err := ledger.WithdrawCall(big.NewInt(1), 500_000)
	require.NoError(t, err)
	_, err = sender.Send(context.Background(), call)
	require.ErrorIs(t, err, model.ErrInclusionTimeout)
	require.Len(t, sim.Sent(), 1)
}

func TestSendPropagatesWalletRejection(t *testing.T) {
	sender, sim, w, ledger := newTestSender(t)
	w.RejectSend = func(model.Call) bool { return true }

	call, err := ledger.WithdrawCall(big.NewInt(1), 500_000)
	require.NoError(t, err)
	_, err = sender.Send(context.Background(), call)
	require.ErrorIs(t, err, model.ErrWalletRejected)
	require.Empty(t, sim.Sent())
}
