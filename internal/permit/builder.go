package permit

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"intentLedger/internal/model"
)

// DefaultDomainName is the EIP-712 domain name of the canonical Permit2 deployment.
const DefaultDomainName = "Permit2"

const (
	primaryType     = "PermitTransferFrom"
	permissionsType = "TokenPermissions"
)

// Domain identifies the authorization contract a permit is signed for.
type Domain struct {
	Name              string
	ChainID           *big.Int
	VerifyingContract common.Address
}

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "permitted", Type: permissionsType},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
	permissionsType: {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
}

// Build returns the PermitTransferFrom typed data for p. The same inputs
// always produce the same document and digest.
func Build(domain Domain, p model.Permit, now time.Time) (apitypes.TypedData, error) {
	if err := Validate(p, now); err != nil {
		return apitypes.TypedData{}, err
	}
	if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
		return apitypes.TypedData{}, fmt.Errorf("domain chain id is required")
	}
	if domain.VerifyingContract == (common.Address{}) {
		return apitypes.TypedData{}, fmt.Errorf("domain verifying contract is required")
	}
	if p.Nonce == nil || p.Nonce.Sign() < 0 {
		return apitypes.TypedData{}, fmt.Errorf("nonce is required")
	}
	name := domain.Name
	if name == "" {
		name = DefaultDomainName
	}

	chainID := (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID))
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			ChainId:           chainID,
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": map[string]interface{}{
				"token":  p.Token.Hex(),
				"amount": p.Amount.String(),
			},
			"spender":  p.Spender.Hex(),
			"nonce":    p.Nonce.String(),
			"deadline": new(big.Int).SetUint64(p.Deadline).String(),
		},
	}, nil
}

// Validate checks the permit bounds: 0 < amount < 2^256 and deadline
// strictly after now.
func Validate(p model.Permit, now time.Time) error {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", model.ErrInvalidAmount)
	}
	if _, overflow := uint256.FromBig(p.Amount); overflow {
		return fmt.Errorf("%w: amount exceeds uint256", model.ErrInvalidAmount)
	}
	if now.Unix() < 0 || p.Deadline <= uint64(now.Unix()) {
		return fmt.Errorf("%w: deadline %d is not after %d", model.ErrExpiredDeadline, p.Deadline, now.Unix())
	}
	return nil
}

// Digest returns the EIP-712 hash a wallet signs for data.
func Digest(data apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash permit: %w", err)
	}
	return common.BytesToHash(hash), nil
}
