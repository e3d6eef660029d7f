package deposit

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"intentLedger/internal/allowance"
	"intentLedger/internal/balance"
	"intentLedger/internal/contracts"
	"intentLedger/internal/contracts/contractstest"
	"intentLedger/internal/metrics"
	"intentLedger/internal/model"
	"intentLedger/internal/permit"
	"intentLedger/internal/session"
	"intentLedger/internal/storage"
	"intentLedger/internal/txn"
)

type harness struct {
	sim     *contractstest.Sim
	wallet  *contractstest.Wallet
	session *session.Guard
	journal *storage.MemoryJournal
	orch    *Orchestrator
}

func newHarness(t *testing.T, policy permit.NoncePolicy) *harness {
	t.Helper()
	sim := contractstest.New(common.HexToAddress("0xaa"))
	w := contractstest.NewWallet(sim)

	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	require.NoError(t, err)
	token, err := contracts.NewToken(sim, sim.Contracts.Token)
	require.NoError(t, err)
	permit2, err := contracts.NewPermit2(sim, sim.Contracts.Authorization)
	require.NoError(t, err)

	sender := txn.NewSender(w, sim, txn.Config{InclusionTimeout: time.Second, PollInterval: time.Millisecond}, nil)
	guard := session.NewGuard()
	journal := &storage.MemoryJournal{}

	orch, err := NewOrchestrator(Deps{
		Wallet:    w,
		Ledger:    ledger,
		Nonces:    permit.NewNonceResolver(permit2, policy, nil),
		Allowance: allowance.NewGuard(token, sender, 0, nil),
		Sender:    sender,
		Balances:  balance.NewView(ledger, token),
		Session:   guard,
		Journal:   journal,
		Metrics:   metrics.New(),
	}, Config{DepositGas: 500_000, WithdrawGas: 500_000})
	require.NoError(t, err)

	return &harness{sim: sim, wallet: w, session: guard, journal: journal, orch: orch}
}

func futureDeadline() uint64 {
	return uint64(time.Now().Add(time.Hour).Unix())
}

func TestDepositIncreasesAvailableByAmount(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.wallet.Address()
	h.sim.Fund(owner, 5_000_000)
	h.sim.Credit(owner, 250, 0)

	res, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.NoError(t, err)
	require.NotNil(t, res.Approval)
	require.Nil(t, res.DryRunErr)
	require.Equal(t, []string{"approve", "permitDeposit"}, h.sim.SentMethods())

	require.Equal(t, int64(250), res.Before.Available.Int64())
	require.Equal(t, int64(1_000_250), res.After.Available.Int64())
	require.Equal(t, int64(4_000_000), h.sim.WalletBalance(owner).Int64())

	records := h.journal.Records()
	require.Len(t, records, 2)
	require.Equal(t, model.OpApprove, records[0].Op)
	require.Equal(t, model.OpDeposit, records[1].Op)
	require.Equal(t, storage.StatusConfirmed, records[1].Status)
	require.Equal(t, res.Tx.Hash.Hex(), records[1].TxHash)
}

func TestDepositSkipsApprovalWithStandingAllowance(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.wallet.Address()
	h.sim.Fund(owner, 5_000_000)
	h.sim.Approve(owner, contractstest.Permit2Address, big.NewInt(10_000_000))
	h.sim.SetPermitNonce(owner, 3)

	res, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.NoError(t, err)
	require.Nil(t, res.Approval)
	require.Equal(t, int64(3), res.Nonce.Int64())
	require.Equal(t, []string{"permitDeposit"}, h.sim.SentMethods())
	require.Len(t, res.Permit.Signature, 65)
	require.Equal(t, owner, res.Permit.Permit.Owner)
	require.Equal(t, int64(3), res.Permit.Permit.Nonce.Int64())
	require.Equal(t, h.sim.Contracts.Ledger, res.Permit.Permit.Spender)

	_, err = h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.NoError(t, err)
	available, _ := h.sim.Balances(owner)
	require.Equal(t, int64(2_000_000), available.Int64())
}

func TestDepositWithPastDeadlineFailsBeforeSigning(t *testing.T) {
	h := newHarness(t, nil)
	h.sim.Fund(h.wallet.Address(), 5_000_000)

	past := uint64(time.Now().Add(-time.Minute).Unix())
	_, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), past)
	require.ErrorIs(t, err, model.ErrExpiredDeadline)
	require.Equal(t, model.ClassPrecondition, model.Classify(err))
	require.Zero(t, h.wallet.Signs())
	require.Zero(t, h.sim.Reads())
	require.Empty(t, h.sim.Sent())
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Deposit(context.Background(), big.NewInt(0), futureDeadline())
	require.ErrorIs(t, err, model.ErrInvalidAmount)
	require.Zero(t, h.sim.Reads())
}

func TestDepositWalletRejectionSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.sim.Fund(h.wallet.Address(), 5_000_000)
	h.wallet.RejectSign = true

	_, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.ErrorIs(t, err, model.ErrWalletRejected)
	require.Equal(t, model.ClassUserDeclined, model.Classify(err))
	require.Empty(t, h.sim.Sent())

	records := h.journal.Records()
	require.Len(t, records, 1)
	require.Equal(t, storage.StatusFailed, records[0].Status)
}

func TestDepositNonceUnavailableNeverSigns(t *testing.T) {
	h := newHarness(t, nil)
	h.sim.FailNonces = errors.New("no nonces()")
	h.sim.FailAllowanceNonce = errors.New("no allowance()")

	_, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.ErrorIs(t, err, model.ErrNonceUnavailable)
	require.Equal(t, model.ClassResolution, model.Classify(err))
	require.Zero(t, h.wallet.Signs())
}

func TestDepositFallsBackToAllowanceNonce(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.wallet.Address()
	h.sim.Fund(owner, 5_000_000)
	h.sim.SetPermitNonce(owner, 2)
	h.sim.FailNonces = errors.New("no nonces()")

	res, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Nonce.Int64())
}

func TestDepositStaleNonceRevertsAfterNonBlockingDryRun(t *testing.T) {
	h := newHarness(t, permit.FixedOffset{Offset: 1})
	owner := h.wallet.Address()
	h.sim.Fund(owner, 5_000_000)
	h.sim.Approve(owner, contractstest.Permit2Address, big.NewInt(10_000_000))

	_, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.ErrorIs(t, err, model.ErrInvalidSignature)
	require.ErrorIs(t, err, model.ErrTransactionReverted)

	var revert *model.RevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, "InvalidNonce()", revert.Reason)

	require.Equal(t, []string{"permitDeposit"}, h.sim.SentMethods())
	records := h.journal.Records()
	require.Len(t, records, 1)
	require.Equal(t, storage.StatusFailed, records[0].Status)

	available, _ := h.sim.Balances(owner)
	require.Zero(t, available.Sign())
}

func TestDepositApprovalRejectedIsInsufficientAllowance(t *testing.T) {
	h := newHarness(t, nil)
	h.sim.Fund(h.wallet.Address(), 5_000_000)
	h.wallet.RejectSend = func(call model.Call) bool { return call.Method == "approve" }

	_, err := h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.ErrorIs(t, err, model.ErrInsufficientAllowance)
	require.ErrorIs(t, err, model.ErrApprovalFailed)
	require.ErrorIs(t, err, model.ErrWalletRejected)
	require.Empty(t, h.sim.Sent())
}

func TestDepositRejectedWhileAnotherOperationRuns(t *testing.T) {
	h := newHarness(t, nil)
	release, err := h.session.Acquire(h.wallet.Address(), model.OpSubmit)
	require.NoError(t, err)
	defer release()

	_, err = h.orch.Deposit(context.Background(), big.NewInt(1_000_000), futureDeadline())
	require.ErrorIs(t, err, model.ErrOperationInFlight)
	require.Zero(t, h.wallet.Signs())
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.wallet.Address()
	h.sim.Credit(owner, 100, 40)

	_, err := h.orch.Withdraw(context.Background(), big.NewInt(101))
	require.ErrorIs(t, err, model.ErrInsufficientAvailableBalance)
	require.Empty(t, h.sim.Sent())

	res, err := h.orch.Withdraw(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	require.Zero(t, res.After.Available.Sign())
	require.Equal(t, int64(40), res.After.Locked.Int64())
	require.Equal(t, int64(100), h.sim.WalletBalance(owner).Int64())
}
