package intent

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"intentLedger/internal/model"
)

func sampleMetadata() model.OrderMetadata {
	return model.OrderMetadata{
		Symbol:     "ETH-20241108-2800C",
		OptionType: "CALL",
		Quantity:   big.NewInt(3),
		Price:      big.NewInt(125_500_000),
		Expiry:     big.NewInt(1_731_024_000_000),
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	cases := []model.OrderMetadata{
		sampleMetadata(),
		{Symbol: "", OptionType: "", Quantity: big.NewInt(0), Price: big.NewInt(0), Expiry: big.NewInt(0)},
		{
			Symbol:     "BTC-PUT-ünïcode",
			OptionType: "PUT",
			Quantity:   new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
			Price:      big.NewInt(1),
			Expiry:     big.NewInt(1),
		},
	}
	for _, want := range cases {
		data, err := EncodeMetadata(want)
		if err != nil {
			t.Fatalf("encode %+v: %v", want, err)
		}
		got, err := DecodeMetadata(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !sameMetadata(got, want) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestEncodeMatchesTupleLayout(t *testing.T) {
	data, err := EncodeMetadata(sampleMetadata())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Five head words, then two length-prefixed strings of one word each.
	if len(data) != 32*9 {
		t.Fatalf("unexpected length %d", len(data))
	}
	if new(big.Int).SetBytes(data[64:96]).Int64() != 3 {
		t.Fatalf("quantity not in third head word")
	}
}

func TestEncodeRejectsOutOfRangeValues(t *testing.T) {
	tests := map[string]func(*model.OrderMetadata){
		"nil quantity":   func(m *model.OrderMetadata) { m.Quantity = nil },
		"negative price": func(m *model.OrderMetadata) { m.Price = big.NewInt(-1) },
		"expiry 2^256":   func(m *model.OrderMetadata) { m.Expiry = new(big.Int).Lsh(big.NewInt(1), 256) },
	}
	for name, mutate := range tests {
		m := sampleMetadata()
		mutate(&m)
		if _, err := EncodeMetadata(m); !errors.Is(err, model.ErrMalformedMetadata) {
			t.Fatalf("%s: expected ErrMalformedMetadata, got %v", name, err)
		}
	}
}

func TestDecodeRejectsMalformedBytes(t *testing.T) {
	valid, err := EncodeMetadata(sampleMetadata())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	uintTy, _ := abi.NewType("uint256", "", nil)
	stringTy, _ := abi.NewType("string", "", nil)
	otherShape, err := abi.Arguments{{Type: uintTy}, {Type: stringTy}}.Pack(big.NewInt(1_700_000_000_000), "Additional data here")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	trailing := append(append([]byte{}, valid...), make([]byte, 64)...)

	shifted := append([]byte{}, valid...)
	shifted = append(shifted, make([]byte, 32)...)
	// move the symbol offset one word further and pad before its payload
	symbolOffset := new(big.Int).SetBytes(valid[0:32]).Int64()
	copy(shifted[symbolOffset+32:], valid[symbolOffset:])
	for i := symbolOffset; i < symbolOffset+32; i++ {
		shifted[i] = 0
	}
	new(big.Int).SetInt64(symbolOffset+32).FillBytes(shifted[0:32])
	optionOffset := new(big.Int).SetBytes(valid[32:64]).Int64()
	new(big.Int).SetInt64(optionOffset+32).FillBytes(shifted[32:64])

	cases := map[string][]byte{
		"empty":             nil,
		"odd length":        valid[:len(valid)-1],
		"truncated":         valid[:96],
		"other tuple":       otherShape,
		"trailing words":    trailing,
		"non-canonical gap": shifted,
	}
	for name, data := range cases {
		if _, err := DecodeMetadata(data); !errors.Is(err, model.ErrMalformedMetadata) {
			t.Fatalf("%s: expected ErrMalformedMetadata, got %v", name, err)
		}
	}
}

func sameMetadata(a, b model.OrderMetadata) bool {
	return a.Symbol == b.Symbol &&
		a.OptionType == b.OptionType &&
		a.Quantity.Cmp(b.Quantity) == 0 &&
		a.Price.Cmp(b.Price) == 0 &&
		a.Expiry.Cmp(b.Expiry) == 0
}
