package snapshot

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/contracts"
	"intentLedger/internal/contracts/contractstest"
	"intentLedger/internal/model"
)

type fakeChain struct {
	block    uint64
	failures int
}

func (c *fakeChain) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.failures > 0 {
		c.failures--
		return 0, errors.New("temporary")
	}
	return c.block, nil
}

type memorySink struct {
	balances map[common.Address]model.Balance
	intents  []model.Intent
	state    map[string]uint64
	batches  int
}

func newMemorySink() *memorySink {
	return &memorySink{balances: make(map[common.Address]model.Balance), state: make(map[string]uint64)}
}

func (s *memorySink) UpsertBalances(ctx context.Context, chainID uint64, balances []model.Balance) error {
	s.batches++
	for _, b := range balances {
		s.balances[b.Account] = b
	}
	return nil
}

func (s *memorySink) UpsertIntents(ctx context.Context, chainID uint64, intents []model.Intent) error {
	s.intents = append(s.intents, intents...)
	return nil
}

func (s *memorySink) SaveState(ctx context.Context, name string, block uint64) error {
	s.state[name] = block
	return nil
}

func TestRunSnapshotsAccounts(t *testing.T) {
	sim := contractstest.New(common.HexToAddress("0xaa"))
	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")
	carol := common.HexToAddress("0x03")
	sim.Credit(alice, 60, 40)
	sim.Credit(bob, 7, 0)

	sink := newMemorySink()
	chain := &fakeChain{block: 99, failures: 1}
	runner := NewRunner(RunConfig{
		Accounts:     []common.Address{alice, bob, carol},
		BatchSize:    2,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, chain, ledger, sink, nil)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sink.batches != 2 {
		t.Fatalf("expected 2 batches, got %d", sink.batches)
	}
	if got := sink.balances[alice]; got.Available.Int64() != 60 || got.Locked.Int64() != 40 {
		t.Fatalf("alice snapshot: %+v", got)
	}
	if got := sink.balances[carol]; got.Available.Sign() != 0 {
		t.Fatalf("carol snapshot: %+v", got)
	}
	if sink.state[StateName(31337)] != 99 {
		t.Fatalf("state not saved: %+v", sink.state)
	}
}

func TestRunRequiresAccounts(t *testing.T) {
	runner := NewRunner(RunConfig{}, &fakeChain{}, nil, newMemorySink(), nil)
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWithRetryStopsAfterMax(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 calls and an error, got %d calls err=%v", calls, err)
	}
}
