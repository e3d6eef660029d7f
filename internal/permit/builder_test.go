package permit

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"intentLedger/internal/model"
)

var (
	testDomain = Domain{
		Name:              DefaultDomainName,
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"),
	}
	testNow = time.Unix(1_700_000_000, 0)
)

func testPermit() model.Permit {
	return model.Permit{
		Owner:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Spender:  common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Token:    common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		Amount:   big.NewInt(1_000_000),
		Nonce:    big.NewInt(3),
		Deadline: uint64(testNow.Add(time.Hour).Unix()),
	}
}

func TestBuildEncodesPermitTransferFrom(t *testing.T) {
	data, err := Build(testDomain, testPermit(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := "PermitTransferFrom(TokenPermissions permitted,address spender,uint256 nonce,uint256 deadline)TokenPermissions(address token,uint256 amount)"
	if got := string(data.EncodeType(primaryType)); got != want {
		t.Fatalf("encodeType mismatch:\n got %s\nwant %s", got, want)
	}
	if data.Domain.Name != "Permit2" || (*big.Int)(data.Domain.ChainId).Int64() != 31337 {
		t.Fatalf("unexpected domain: %+v", data.Domain)
	}
	permitted, ok := data.Message["permitted"].(map[string]interface{})
	if !ok {
		t.Fatalf("permitted is %T", data.Message["permitted"])
	}
	if permitted["amount"] != "1000000" || data.Message["nonce"] != "3" {
		t.Fatalf("unexpected message: %+v", data.Message)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := Build(testDomain, testPermit(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := Build(testDomain, testPermit(), testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reflect.DeepEqual(first.Message, second.Message) {
		t.Fatalf("messages differ: %+v vs %+v", first.Message, second.Message)
	}

	d1, err := Digest(first)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := Digest(second)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("digest not deterministic: %s vs %s", d1, d2)
	}
}

func TestDigestBindsEveryField(t *testing.T) {
	base, err := Build(testDomain, testPermit(), testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	baseDigest, err := Digest(base)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	mutations := map[string]func(*model.Permit){
		"amount":   func(p *model.Permit) { p.Amount = big.NewInt(1_000_001) },
		"nonce":    func(p *model.Permit) { p.Nonce = big.NewInt(4) },
		"deadline": func(p *model.Permit) { p.Deadline++ },
		"spender":  func(p *model.Permit) { p.Spender = common.HexToAddress("0x02") },
		"token":    func(p *model.Permit) { p.Token = common.HexToAddress("0x03") },
	}
	for name, mutate := range mutations {
		p := testPermit()
		mutate(&p)
		data, err := Build(testDomain, p, testNow)
		if err != nil {
			t.Fatalf("%s: build: %v", name, err)
		}
		digest, err := Digest(data)
		if err != nil {
			t.Fatalf("%s: digest: %v", name, err)
		}
		if digest == baseDigest {
			t.Fatalf("%s: digest unchanged", name)
		}
	}
}

func TestSignatureRecoversOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	p := testPermit()
	p.Owner = crypto.PubkeyToAddress(key.PublicKey)

	data, err := Build(testDomain, p, testNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	digest, err := Digest(data)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != p.Owner {
		t.Fatalf("recovered %s, want %s", got.Hex(), p.Owner.Hex())
	}
}

func TestBuildRejectsInvalidPermits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Permit)
		want   error
	}{
		{"zero amount", func(p *model.Permit) { p.Amount = big.NewInt(0) }, model.ErrInvalidAmount},
		{"negative amount", func(p *model.Permit) { p.Amount = big.NewInt(-1) }, model.ErrInvalidAmount},
		{"nil amount", func(p *model.Permit) { p.Amount = nil }, model.ErrInvalidAmount},
		{"overflow", func(p *model.Permit) { p.Amount = new(big.Int).Lsh(big.NewInt(1), 256) }, model.ErrInvalidAmount},
		{"deadline now", func(p *model.Permit) { p.Deadline = uint64(testNow.Unix()) }, model.ErrExpiredDeadline},
		{"deadline past", func(p *model.Permit) { p.Deadline = uint64(testNow.Unix()) - 60 }, model.ErrExpiredDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPermit()
			tt.mutate(&p)
			_, err := Build(testDomain, p, testNow)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
