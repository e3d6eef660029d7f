// Package contractstest simulates the ledger, token and Permit2 contracts
// in memory so orchestration code can be exercised without a node.
package contractstest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"intentLedger/internal/contracts"
	"intentLedger/internal/model"
)

var (
	LedgerAddress  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	TokenAddress   = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	Permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	ChainID        = big.NewInt(31337)
)

// RevertErr mimics a node's execution-reverted error carrying revert data.
type RevertErr struct {
	Data []byte
}

func (e *RevertErr) Error() string          { return "execution reverted" }
func (e *RevertErr) ErrorCode() int         { return 3 }
func (e *RevertErr) ErrorData() interface{} { return hexutil.Encode(e.Data) }

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Sim is an in-memory deployment. All exported fields may be changed
// between calls; they are read under the lock.
type Sim struct {
	mu sync.Mutex

	Contracts model.Contracts
	Owner     common.Address
	Now       time.Time

	// Read failure injection.
	FailNonces         error
	FailAllowanceNonce error
	FailAllowance      error
	FailBalance        error
	// HoldReceipts leaves every transaction pending.
	HoldReceipts bool

	maxIntents  *big.Int
	wallet      map[common.Address]*big.Int
	allowance   map[allowanceKey]*big.Int
	permitNonce map[common.Address]*big.Int
	available   map[common.Address]*big.Int
	locked      map[common.Address]*big.Int
	intents     map[common.Address][]model.Intent
	signed      map[common.Address][]apitypes.TypedData

	block    uint64
	receipts map[common.Hash]*types.Receipt
	failedAt map[uint64][]byte
	sent     []model.Call
	reads    int

	ledgerABI  abi.ABI
	tokenABI   abi.ABI
	permit2ABI abi.ABI
}

// New returns a deployment where intents and settlement share the ledger
// address and owner is the settlement owner.
func New(owner common.Address) *Sim {
	ledgerABI, err := contracts.LedgerABI()
	if err != nil {
		panic(err)
	}
	tokenABI, err := contracts.ERC20ABI()
	if err != nil {
		panic(err)
	}
	permit2ABI, err := contracts.Permit2ABI()
	if err != nil {
		panic(err)
	}
	return &Sim{
		Contracts: model.Contracts{
			Ledger:        LedgerAddress,
			Token:         TokenAddress,
			Authorization: Permit2Address,
			Intents:       LedgerAddress,
			Settlement:    LedgerAddress,
			ChainID:       new(big.Int).Set(ChainID),
		},
		Owner:       owner,
		Now:         time.Now(),
		maxIntents:  big.NewInt(10),
		wallet:      make(map[common.Address]*big.Int),
		allowance:   make(map[allowanceKey]*big.Int),
		permitNonce: make(map[common.Address]*big.Int),
		available:   make(map[common.Address]*big.Int),
		locked:      make(map[common.Address]*big.Int),
		intents:     make(map[common.Address][]model.Intent),
		signed:      make(map[common.Address][]apitypes.TypedData),
		block:       1,
		receipts:    make(map[common.Hash]*types.Receipt),
		failedAt:    make(map[uint64][]byte),
		ledgerABI:   ledgerABI,
		tokenABI:    tokenABI,
		permit2ABI:  permit2ABI,
	}
}

// Fund credits account's wallet token balance.
func (s *Sim) Fund(account common.Address, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	add(s.wallet, account, big.NewInt(amount))
}

// Credit sets ledger balances directly.
func (s *Sim) Credit(account common.Address, available, locked int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[account] = big.NewInt(available)
	s.locked[account] = big.NewInt(locked)
}

// Approve sets the token allowance owner grants spender.
func (s *Sim) Approve(owner, spender common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowance[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

// SetPermitNonce sets the next Permit2 nonce expected from owner.
func (s *Sim) SetPermitNonce(owner common.Address, nonce int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permitNonce[owner] = big.NewInt(nonce)
}

// Balances returns account's ledger balances.
func (s *Sim) Balances(account common.Address) (available, locked *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.available, account), get(s.locked, account)
}

// WalletBalance returns account's token balance outside the ledger.
func (s *Sim) WalletBalance(account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.wallet, account)
}

// TokenAllowance returns the token allowance owner grants spender.
func (s *Sim) TokenAllowance(owner, spender common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.allowance, allowanceKey{owner, spender})
}

// Intents returns a copy of account's intents.
func (s *Sim) Intents(account common.Address) []model.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Intent(nil), s.intents[account]...)
}

// Sent returns every call submitted as a transaction, in order.
func (s *Sim) Sent() []model.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Call(nil), s.sent...)
}

// SentMethods returns the method names of Sent.
func (s *Sim) SentMethods() []string {
	calls := s.Sent()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Reads counts CallContract invocations.
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// CallContract answers view calls and dry-runs mutating calls without
// committing them. When block names a failed transaction, its revert is
// replayed.
func (s *Sim) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	if block != nil && block.IsUint64() {
		if data, ok := s.failedAt[block.Uint64()]; ok {
			return nil, &RevertErr{Data: data}
		}
	}
	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("missing selector")
	}

	parsed, err := s.abiFor(*msg.To)
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	if !method.IsConstant() {
		if revert := s.exec(msg.From, *msg.To, method.Name, args, false); revert != nil {
			return nil, &RevertErr{Data: revert}
		}
		return method.Outputs.Pack()
	}

	outs, err := s.view(*msg.To, method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(outs...)
}

// TransactionReceipt returns the receipt of a submitted transaction.
func (s *Sim) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HoldReceipts {
		return nil, ethereum.NotFound
	}
	receipt, ok := s.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (s *Sim) submit(from common.Address, call model.Call) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := s.abiFor(call.To)
	if err != nil {
		return common.Hash{}, err
	}
	if len(call.Data) < 4 {
		return common.Hash{}, errors.New("missing selector")
	}
	method, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return common.Hash{}, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	s.sent = append(s.sent, call)
	s.block++
	hash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(s.block).Bytes(), call.Data)
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(s.block),
		GasUsed:     21_000,
	}
	if revert := s.exec(from, call.To, method.Name, args, true); revert != nil {
		receipt.Status = types.ReceiptStatusFailed
		s.failedAt[s.block] = revert
	}
	s.receipts[hash] = receipt
	return hash, nil
}

func (s *Sim) abiFor(to common.Address) (abi.ABI, error) {
	switch to {
	case s.Contracts.Ledger, s.Contracts.Intents, s.Contracts.Settlement:
		return s.ledgerABI, nil
	case s.Contracts.Token:
		return s.tokenABI, nil
	case s.Contracts.Authorization:
		return s.permit2ABI, nil
	default:
		return abi.ABI{}, fmt.Errorf("no contract at %s", to.Hex())
	}
}

type intentOut struct {
	User       common.Address
	Amount     *big.Int
	IntentType string
	Metadata   []byte
	IsExecuted bool
	Timestamp  *big.Int
}

func (s *Sim) view(to common.Address, name string, args []interface{}) ([]interface{}, error) {
	switch to {
	case s.Contracts.Token:
		switch name {
		case "balanceOf":
			if s.FailBalance != nil {
				return nil, s.FailBalance
			}
			return []interface{}{get(s.wallet, args[0].(common.Address))}, nil
		case "allowance":
			if s.FailAllowance != nil {
				return nil, s.FailAllowance
			}
			return []interface{}{get(s.allowance, allowanceKey{args[0].(common.Address), args[1].(common.Address)})}, nil
		case "decimals":
			return []interface{}{uint8(6)}, nil
		case "symbol":
			return []interface{}{"USDC"}, nil
		}
	case s.Contracts.Authorization:
		switch name {
		case "nonces":
			if s.FailNonces != nil {
				return nil, s.FailNonces
			}
			return []interface{}{get(s.permitNonce, args[0].(common.Address))}, nil
		case "allowance":
			if s.FailAllowanceNonce != nil {
				return nil, s.FailAllowanceNonce
			}
			nonce := get(s.permitNonce, args[0].(common.Address))
			return []interface{}{new(big.Int), new(big.Int), nonce}, nil
		case "DOMAIN_SEPARATOR":
			return []interface{}{[32]byte{}}, nil
		}
	default:
		switch name {
		case "getUserBalance":
			if s.FailBalance != nil {
				return nil, s.FailBalance
			}
			account := args[0].(common.Address)
			return []interface{}{get(s.available, account), get(s.locked, account)}, nil
		case "getUserIntents":
			account := args[0].(common.Address)
			out := make([]intentOut, 0, len(s.intents[account]))
			for _, in := range s.intents[account] {
				out = append(out, intentOut{
					User:       in.Owner,
					Amount:     in.Amount,
					IntentType: in.IntentType,
					Metadata:   in.Metadata,
					IsExecuted: in.IsExecuted,
					Timestamp:  new(big.Int).SetUint64(in.Timestamp),
				})
			}
			return []interface{}{out}, nil
		case "maxIntents":
			return []interface{}{new(big.Int).Set(s.maxIntents)}, nil
		case "owner":
			return []interface{}{s.Owner}, nil
		}
	}
	return nil, fmt.Errorf("view %s not simulated", name)
}

// exec validates a mutating call and applies it when commit is set. It
// returns revert data on failure.
func (s *Sim) exec(from, to common.Address, name string, args []interface{}, commit bool) []byte {
	if to == s.Contracts.Token {
		if name != "approve" {
			return revertString("unsupported token call")
		}
		if commit {
			s.allowance[allowanceKey{from, args[0].(common.Address)}] = new(big.Int).Set(args[1].(*big.Int))
		}
		return nil
	}
	if to == s.Contracts.Authorization {
		return revertString("unsupported permit2 call")
	}

	switch name {
	case "permitDeposit":
		return s.permitDeposit(from, args, commit)
	case "withdraw":
		amount := args[0].(*big.Int)
		if amount.Sign() <= 0 || get(s.available, from).Cmp(amount) < 0 {
			return revertString("Insufficient available balance")
		}
		if commit {
			sub(s.available, from, amount)
			add(s.wallet, from, amount)
		}
		return nil
	case "submitIntent":
		amount := args[0].(*big.Int)
		if amount.Sign() <= 0 || get(s.available, from).Cmp(amount) < 0 {
			return revertString("Insufficient available balance")
		}
		open := 0
		for _, in := range s.intents[from] {
			if !in.IsExecuted {
				open++
			}
		}
		if big.NewInt(int64(open)).Cmp(s.maxIntents) >= 0 {
			return revertString("Max intents reached")
		}
		if commit {
			sub(s.available, from, amount)
			add(s.locked, from, amount)
			s.intents[from] = append(s.intents[from], model.Intent{
				Owner:      from,
				Index:      uint64(len(s.intents[from])),
				Amount:     new(big.Int).Set(amount),
				IntentType: args[1].(string),
				Metadata:   append([]byte(nil), args[2].([]byte)...),
				Timestamp:  uint64(s.Now.Unix()),
			})
		}
		return nil
	case "settleIntent":
		if from != s.Owner {
			return s.ownableRevert(from)
		}
		return s.settle([]common.Address{args[0].(common.Address)}, []*big.Int{args[1].(*big.Int)}, []*big.Int{args[2].(*big.Int)}, commit)
	case "batchSettleIntents":
		if from != s.Owner {
			return s.ownableRevert(from)
		}
		return s.settle(args[0].([]common.Address), args[1].([]*big.Int), args[2].([]*big.Int), commit)
	case "setMaxIntents":
		if from != s.Owner {
			return s.ownableRevert(from)
		}
		if commit {
			s.maxIntents = new(big.Int).Set(args[0].(*big.Int))
		}
		return nil
	}
	return revertString("unsupported ledger call " + name)
}

func (s *Sim) permitDeposit(from common.Address, args []interface{}, commit bool) []byte {
	amount := args[0].(*big.Int)
	deadline := args[1].(*big.Int)
	nonce := args[2].(*big.Int)
	encoded := args[3].([]byte)
	signature := args[4].([]byte)

	if amount.Sign() <= 0 {
		return s.permit2Revert("InvalidAmount", amount)
	}
	if deadline.Cmp(big.NewInt(s.Now.Unix())) < 0 {
		return s.permit2Revert("SignatureExpired", deadline)
	}
	if nonce.Cmp(get(s.permitNonce, from)) != 0 {
		return s.permit2Revert("InvalidNonce")
	}
	if len(signature) != 65 {
		return s.permit2Revert("InvalidSignatureLength")
	}
	if !s.signatureMatches(from, amount, deadline, nonce, encoded, signature) {
		return s.permit2Revert("InvalidSigner")
	}
	allowance := get(s.allowance, allowanceKey{from, s.Contracts.Authorization})
	if allowance.Cmp(amount) < 0 {
		return s.tokenRevert("ERC20InsufficientAllowance", s.Contracts.Authorization, allowance, amount)
	}
	if get(s.wallet, from).Cmp(amount) < 0 {
		return s.tokenRevert("ERC20InsufficientBalance", from, get(s.wallet, from), amount)
	}
	if !commit {
		return nil
	}
	sub(s.wallet, from, amount)
	add(s.available, from, amount)
	if allowance.Cmp(math.MaxBig256) != 0 {
		sub(s.allowance, allowanceKey{from, s.Contracts.Authorization}, amount)
	}
	s.permitNonce[from] = new(big.Int).Add(nonce, big.NewInt(1))
	return nil
}

func (s *Sim) signatureMatches(from common.Address, amount, deadline, nonce *big.Int, encoded, signature []byte) bool {
	want, err := contracts.EncodeTokenPermissions(s.Contracts.Token, amount)
	if err != nil || string(want) != string(encoded) {
		return false
	}
	recoverable := append([]byte(nil), signature...)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}
	for _, data := range s.signed[from] {
		if !messageMatches(data, s.Contracts.Token, s.Contracts.Ledger, amount, deadline, nonce) {
			continue
		}
		digest, _, err := apitypes.TypedDataAndHash(data)
		if err != nil {
			continue
		}
		pub, err := crypto.SigToPub(digest, recoverable)
		if err == nil && crypto.PubkeyToAddress(*pub) == from {
			return true
		}
	}
	return false
}

func messageMatches(data apitypes.TypedData, token, spender common.Address, amount, deadline, nonce *big.Int) bool {
	permitted, ok := data.Message["permitted"].(map[string]interface{})
	if !ok {
		return false
	}
	return sameAddress(permitted["token"], token) &&
		sameNumber(permitted["amount"], amount) &&
		sameAddress(data.Message["spender"], spender) &&
		sameNumber(data.Message["nonce"], nonce) &&
		sameNumber(data.Message["deadline"], deadline)
}

func sameAddress(v interface{}, want common.Address) bool {
	str, ok := v.(string)
	return ok && common.IsHexAddress(str) && common.HexToAddress(str) == want
}

func sameNumber(v interface{}, want *big.Int) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	got, ok := math.ParseBig256(str)
	return ok && got.Cmp(want) == 0
}

func (s *Sim) settle(users []common.Address, indices, pnls []*big.Int, commit bool) []byte {
	if len(users) != len(indices) || len(users) != len(pnls) {
		return revertString("Array length mismatch")
	}
	available := make(map[common.Address]*big.Int)
	for i, user := range users {
		idx := indices[i]
		if !idx.IsUint64() || idx.Uint64() >= uint64(len(s.intents[user])) {
			return revertString("Invalid intent index")
		}
		in := s.intents[user][idx.Uint64()]
		if in.IsExecuted {
			return revertString("Intent already executed")
		}
		if _, ok := available[user]; !ok {
			available[user] = get(s.available, user)
		}
		available[user].Add(available[user], pnls[i])
		if available[user].Sign() < 0 {
			return revertString("Loss exceeds available balance")
		}
	}
	if !commit {
		return nil
	}
	for i, user := range users {
		idx := indices[i].Uint64()
		in := s.intents[user][idx]
		sub(s.locked, user, in.Amount)
		add(s.available, user, pnls[i])
		in.IsExecuted = true
		s.intents[user][idx] = in
	}
	return nil
}

func (s *Sim) ownableRevert(account common.Address) []byte {
	return packError(s.ledgerABI, "OwnableUnauthorizedAccount", account)
}

func (s *Sim) permit2Revert(name string, args ...interface{}) []byte {
	return packError(s.permit2ABI, name, args...)
}

func (s *Sim) tokenRevert(name string, args ...interface{}) []byte {
	return packError(s.tokenABI, name, args...)
}

func packError(parsed abi.ABI, name string, args ...interface{}) []byte {
	abiErr, ok := parsed.Errors[name]
	if !ok {
		panic("unknown error " + name)
	}
	packed, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", name, err))
	}
	return append(append([]byte(nil), abiErr.ID[:4]...), packed...)
}

var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

func revertString(reason string) []byte {
	packed, err := abi.Arguments{{Type: mustType("string")}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return append(append([]byte(nil), revertSelector...), packed...)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func get[K comparable](m map[K]*big.Int, key K) *big.Int {
	if v, ok := m[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func add[K comparable](m map[K]*big.Int, key K, delta *big.Int) {
	m[key] = new(big.Int).Add(get(m, key), delta)
}

func sub[K comparable](m map[K]*big.Int, key K, delta *big.Int) {
	m[key] = new(big.Int).Sub(get(m, key), delta)
}
