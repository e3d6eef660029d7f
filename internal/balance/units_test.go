package balance

import (
	"errors"
	"math/big"
	"testing"

	"intentLedger/internal/model"
)

func TestParseAndFormatUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		format   string
	}{
		{"1.5", 6, "1500000", "1.5"},
		{"1", 6, "1000000", "1"},
		{"0.000001", 6, "1", "0.000001"},
		{"-5", 6, "-5000000", "-5"},
		{"42", 0, "42", "42"},
		{".25", 2, "25", "0.25"},
		{"1.50", 1, "15", "1.5"},
		{"115792089237316195423570985008687907853269984665640564039457.584007913129639935", 18,
			"115792089237316195423570985008687907853269984665640564039457584007913129639935",
			"115792089237316195423570985008687907853269984665640564039457.584007913129639935"},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Fatalf("parse %q: got %s want %s", tt.in, got, tt.want)
		}
		if f := FormatUnits(got, tt.decimals); f != tt.format {
			t.Fatalf("format %s: got %s want %s", got, f, tt.format)
		}
	}
}

func TestParseUnitsRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2345678", "1.", "1e6", "1,5", "0.0000001"} {
		if _, err := ParseUnits(in, 6); !errors.Is(err, model.ErrInvalidAmount) {
			t.Fatalf("%q: expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestFormatUnitsNil(t *testing.T) {
	if got := FormatUnits(nil, 6); got != "0" {
		t.Fatalf("got %s", got)
	}
	if got := FormatUnits(big.NewInt(10), 1); got != "1" {
		t.Fatalf("got %s", got)
	}
}
