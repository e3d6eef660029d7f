package intent

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"

	"intentLedger/internal/model"
)

// metadataArgs is the tuple (string symbol, string optionType, uint256
// quantity, uint256 price, uint256 expiry) carried in Intent.Metadata.
var metadataArgs = func() abi.Arguments {
	stringTy, _ := abi.NewType("string", "", nil)
	uintTy, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{
		{Name: "symbol", Type: stringTy},
		{Name: "optionType", Type: stringTy},
		{Name: "quantity", Type: uintTy},
		{Name: "price", Type: uintTy},
		{Name: "expiry", Type: uintTy},
	}
}()

// EncodeMetadata ABI-encodes m.
func EncodeMetadata(m model.OrderMetadata) ([]byte, error) {
	for name, v := range map[string]*big.Int{"quantity": m.Quantity, "price": m.Price, "expiry": m.Expiry} {
		if err := checkUint256(name, v); err != nil {
			return nil, err
		}
	}
	data, err := metadataArgs.Pack(m.Symbol, m.OptionType, m.Quantity, m.Price, m.Expiry)
	if err != nil {
		return nil, model.Wrap(model.ErrMalformedMetadata, err)
	}
	return data, nil
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(data []byte) (model.OrderMetadata, error) {
	if len(data) == 0 || len(data)%32 != 0 {
		return model.OrderMetadata{}, fmt.Errorf("%w: %d bytes is not a whole number of words", model.ErrMalformedMetadata, len(data))
	}
	values, err := metadataArgs.Unpack(data)
	if err != nil {
		return model.OrderMetadata{}, model.Wrap(model.ErrMalformedMetadata, err)
	}
	if len(values) != len(metadataArgs) {
		return model.OrderMetadata{}, fmt.Errorf("%w: %d fields", model.ErrMalformedMetadata, len(values))
	}

	symbol, ok1 := values[0].(string)
	optionType, ok2 := values[1].(string)
	quantity, ok3 := values[2].(*big.Int)
	price, ok4 := values[3].(*big.Int)
	expiry, ok5 := values[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return model.OrderMetadata{}, fmt.Errorf("%w: unexpected field types", model.ErrMalformedMetadata)
	}
	// Unpack ignores trailing words and tolerates odd offsets; only the
	// canonical encoding is accepted.
	canonical, err := metadataArgs.Pack(symbol, optionType, quantity, price, expiry)
	if err != nil || !bytes.Equal(canonical, data) {
		return model.OrderMetadata{}, fmt.Errorf("%w: %d bytes is not the canonical encoding (%d bytes)", model.ErrMalformedMetadata, len(data), len(canonical))
	}
	return model.OrderMetadata{
		Symbol:     symbol,
		OptionType: optionType,
		Quantity:   quantity,
		Price:      price,
		Expiry:     expiry,
	}, nil
}

func checkUint256(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is missing", model.ErrMalformedMetadata, name)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", model.ErrMalformedMetadata, name)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: %s exceeds uint256", model.ErrMalformedMetadata, name)
	}
	return nil
}
