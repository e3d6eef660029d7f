package permit

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"intentLedger/internal/model"
)

type stubNonceSource struct {
	nonce          *big.Int
	nonceErr       error
	allowanceNonce *big.Int
	allowanceErr   error
	fallbackCalls  int
}

func (s *stubNonceSource) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return s.nonce, s.nonceErr
}

func (s *stubNonceSource) AllowanceNonce(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	s.fallbackCalls++
	return s.allowanceNonce, s.allowanceErr
}

func TestResolvePrefersPrimaryNonce(t *testing.T) {
	source := &stubNonceSource{nonce: big.NewInt(7), allowanceNonce: big.NewInt(99)}
	resolver := NewNonceResolver(source, nil, nil)

	nonce, err := resolver.Resolve(context.Background(), common.Address{}, common.Address{}, common.Address{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if nonce.Int64() != 7 {
		t.Fatalf("expected primary nonce 7, got %s", nonce)
	}
	if source.fallbackCalls != 0 {
		t.Fatalf("fallback consulted %d times", source.fallbackCalls)
	}
}

func TestResolveFallsBackOnPrimaryFailure(t *testing.T) {
	source := &stubNonceSource{nonceErr: errors.New("execution reverted"), allowanceNonce: big.NewInt(4)}
	resolver := NewNonceResolver(source, nil, nil)

	nonce, err := resolver.Resolve(context.Background(), common.Address{}, common.Address{}, common.Address{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if nonce.Int64() != 4 || source.fallbackCalls != 1 {
		t.Fatalf("expected fallback nonce 4 after one call, got %s after %d", nonce, source.fallbackCalls)
	}
}

func TestResolveFailsWhenBothSourcesFail(t *testing.T) {
	source := &stubNonceSource{nonceErr: errors.New("no method"), allowanceErr: errors.New("no method")}
	resolver := NewNonceResolver(source, FixedOffset{Offset: 1}, nil)

	nonce, err := resolver.Resolve(context.Background(), common.Address{}, common.Address{}, common.Address{})
	if !errors.Is(err, model.ErrNonceUnavailable) {
		t.Fatalf("expected ErrNonceUnavailable, got %v", err)
	}
	if nonce != nil {
		t.Fatalf("expected no nonce, got %s", nonce)
	}
}

func TestFixedOffsetAppliesToEitherSource(t *testing.T) {
	policy := FixedOffset{Offset: 1}

	primary := NewNonceResolver(&stubNonceSource{nonce: big.NewInt(5)}, policy, nil)
	nonce, err := primary.Resolve(context.Background(), common.Address{}, common.Address{}, common.Address{})
	if err != nil || nonce.Int64() != 6 {
		t.Fatalf("primary with offset: nonce=%v err=%v", nonce, err)
	}

	fallback := NewNonceResolver(&stubNonceSource{nonceErr: errors.New("boom"), allowanceNonce: big.NewInt(2)}, policy, nil)
	nonce, err = fallback.Resolve(context.Background(), common.Address{}, common.Address{}, common.Address{})
	if err != nil || nonce.Int64() != 3 {
		t.Fatalf("fallback with offset: nonce=%v err=%v", nonce, err)
	}
}
