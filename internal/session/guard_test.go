package session

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"intentLedger/internal/model"
)

func TestGuardRejectsSecondOperationForSameAccount(t *testing.T) {
	g := NewGuard()
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	release, err := g.Acquire(alice, model.OpDeposit)
	require.NoError(t, err)

	_, err = g.Acquire(alice, model.OpSubmit)
	require.ErrorIs(t, err, model.ErrOperationInFlight)

	releaseBob, err := g.Acquire(bob, model.OpSubmit)
	require.NoError(t, err)
	releaseBob()

	op, ok := g.Running(alice)
	require.True(t, ok)
	require.Equal(t, model.OpDeposit, op)

	release()
	release()
	_, ok = g.Running(alice)
	require.False(t, ok)

	release, err = g.Acquire(alice, model.OpWithdraw)
	require.NoError(t, err)
	release()
}
