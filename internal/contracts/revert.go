package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"intentLedger/internal/model"
)

// RevertData extracts revert bytes attached to an RPC error, if any.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		data, err := hexutil.Decode(v)
		if err != nil {
			return nil, false
		}
		return data, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

// DecodeRevert turns revert bytes into a readable reason using the known
// error ABIs, and reports the error kind the reason signals.
func DecodeRevert(data []byte) (string, error) {
	if len(data) < 4 {
		return "", model.ErrTransactionReverted
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason, kindForReason(reason)
	}

	for _, parsed := range knownABIs() {
		names := make([]string, 0, len(parsed.Errors))
		for name := range parsed.Errors {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			abiErr := parsed.Errors[name]
			if !bytes.Equal(abiErr.ID[:4], data[:4]) {
				continue
			}
			values, err := abiErr.Inputs.Unpack(data[4:])
			if err != nil {
				return name + "(?)", kindForError(name)
			}
			args := make([]string, 0, len(values))
			for _, v := range values {
				args = append(args, fmt.Sprintf("%v", v))
			}
			return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), kindForError(name)
		}
	}
	return fmt.Sprintf("unknown error %s", hexutil.Encode(data[:4])), model.ErrTransactionReverted
}

// NewRevertError builds the surfaced error for a failed call or transaction.
func NewRevertError(txHash string, data []byte) *model.RevertError {
	reason, kind := DecodeRevert(data)
	return &model.RevertError{TxHash: txHash, Reason: reason, Data: data, Kind: kind}
}

func knownABIs() []abi.ABI {
	out := make([]abi.ABI, 0, 3)
	for _, load := range []func() (abi.ABI, error){LedgerABI, Permit2ABI, ERC20ABI} {
		if parsed, err := load(); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}

func kindForError(name string) error {
	switch name {
	case "InvalidSignature", "InvalidSigner", "InvalidSignatureLength", "InvalidContractSignature", "InvalidNonce":
		return model.ErrInvalidSignature
	case "SignatureExpired", "AllowanceExpired":
		return model.ErrExpiredDeadline
	case "InsufficientAllowance", "ERC20InsufficientAllowance":
		return model.ErrInsufficientAllowance
	case "InvalidAmount":
		return model.ErrInvalidAmount
	case "OwnableUnauthorizedAccount":
		return model.ErrUnauthorizedSettler
	default:
		return model.ErrTransactionReverted
	}
}

func kindForReason(reason string) error {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "allowance"):
		return model.ErrInsufficientAllowance
	case strings.Contains(lower, "signature"), strings.Contains(lower, "nonce"):
		return model.ErrInvalidSignature
	default:
		return model.ErrTransactionReverted
	}
}
