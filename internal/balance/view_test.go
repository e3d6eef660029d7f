package balance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/contracts"
	"intentLedger/internal/contracts/contractstest"
)

func TestRefreshCachesLatestBalance(t *testing.T) {
	sim := contractstest.New(common.HexToAddress("0xaa"))
	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	view := NewView(ledger, nil)
	alice := common.HexToAddress("0x01")

	if _, ok := view.Cached(alice); ok {
		t.Fatalf("expected empty cache")
	}

	sim.Credit(alice, 100, 40)
	b, err := view.Refresh(context.Background(), alice)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if b.Available.Int64() != 100 || b.Locked.Int64() != 40 || b.Total().Int64() != 140 {
		t.Fatalf("unexpected balance: %+v", b)
	}

	sim.Credit(alice, 60, 80)
	cached, ok := view.Cached(alice)
	if !ok || cached.Available.Int64() != 100 {
		t.Fatalf("cache changed without refresh: %+v", cached)
	}

	cached.Available.SetInt64(0)
	again, _ := view.Cached(alice)
	if again.Available.Int64() != 100 {
		t.Fatalf("cached balance aliased caller copy")
	}
}

func TestRefreshErrorKeepsCache(t *testing.T) {
	sim := contractstest.New(common.HexToAddress("0xaa"))
	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	view := NewView(ledger, nil)
	alice := common.HexToAddress("0x01")
	sim.Credit(alice, 5, 0)
	if _, err := view.Refresh(context.Background(), alice); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	sim.FailBalance = errors.New("rpc down")
	if _, err := view.Refresh(context.Background(), alice); err == nil {
		t.Fatalf("expected refresh error")
	}
	if b, ok := view.Cached(alice); !ok || b.Available.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("cache lost on failed refresh: %+v", b)
	}
}
