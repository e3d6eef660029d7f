package session

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/model"
)

// Guard allows at most one mutating operation per account at a time.
// A second request while one is running is rejected, not queued.
type Guard struct {
	mu      sync.Mutex
	running map[common.Address]string
}

func NewGuard() *Guard {
	return &Guard{running: make(map[common.Address]string)}
}

// Acquire marks op as running for account. The returned release must be
// called once the operation finishes.
func (g *Guard) Acquire(account common.Address, op string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := g.running[account]; ok {
		return nil, fmt.Errorf("%w: %s already running for %s", model.ErrOperationInFlight, current, account.Hex())
	}
	g.running[account] = op

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, account)
			g.mu.Unlock()
		})
	}, nil
}

// Running reports the operation in flight for account, if any.
func (g *Guard) Running(account common.Address) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	op, ok := g.running[account]
	return op, ok
}
