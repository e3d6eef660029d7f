package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrExpiredDeadline              = errors.New("expired deadline")
	ErrNonceUnavailable             = errors.New("nonce unavailable")
	ErrAllowanceUnavailable         = errors.New("allowance unavailable")
	ErrApprovalFailed               = errors.New("approval failed")
	ErrWalletRejected               = errors.New("wallet rejected request")
	ErrInsufficientAllowance        = errors.New("insufficient allowance")
	ErrInvalidSignature             = errors.New("invalid signature")
	ErrTransactionReverted          = errors.New("transaction reverted")
	ErrInclusionTimeout             = errors.New("inclusion timeout")
	ErrMalformedMetadata            = errors.New("malformed metadata")
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")
	ErrMalformedBatch               = errors.New("malformed batch")
	ErrIntentAlreadyExecuted        = errors.New("intent already executed")
	ErrIntentNotFound               = errors.New("intent not found")
	ErrUnauthorizedSettler          = errors.New("unauthorized settler")
	ErrOperationInFlight            = errors.New("operation in flight")
)

// RevertError is an on-chain failure with the decoded revert reason, if any.
type RevertError struct {
	TxHash string
	Reason string
	Data   []byte
	// Kind is the sentinel the revert maps to; ErrTransactionReverted when
	// the reason does not identify anything more specific.
	Kind error
}

func (e *RevertError) Error() string {
	msg := "transaction reverted"
	if e.TxHash != "" {
		msg += " " + e.TxHash
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RevertError) Unwrap() []error {
	if e.Kind == nil || e.Kind == ErrTransactionReverted {
		return []error{ErrTransactionReverted}
	}
	return []error{e.Kind, ErrTransactionReverted}
}

// ErrorClass groups errors for callers deciding how to surface them.
type ErrorClass string

const (
	ClassUserDeclined ErrorClass = "user-declined"
	ClassPrecondition ErrorClass = "precondition"
	ClassResolution   ErrorClass = "resolution"
	ClassOnChain      ErrorClass = "on-chain"
	ClassTransient    ErrorClass = "transient"
	ClassUnknown      ErrorClass = "unknown"
)

// Classify maps an error onto the taxonomy callers act on.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWalletRejected):
		return ClassUserDeclined
	case errors.As(err, new(*RevertError)):
		return ClassOnChain
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrExpiredDeadline),
		errors.Is(err, ErrMalformedBatch),
		errors.Is(err, ErrMalformedMetadata),
		errors.Is(err, ErrInsufficientAvailableBalance),
		errors.Is(err, ErrIntentAlreadyExecuted),
		errors.Is(err, ErrIntentNotFound),
		errors.Is(err, ErrUnauthorizedSettler),
		errors.Is(err, ErrOperationInFlight):
		return ClassPrecondition
	case errors.Is(err, ErrNonceUnavailable), errors.Is(err, ErrAllowanceUnavailable):
		return ClassResolution
	case errors.Is(err, ErrInclusionTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, ErrTransactionReverted),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrApprovalFailed),
		errors.Is(err, ErrInsufficientAllowance):
		return ClassOnChain
	default:
		return ClassUnknown
	}
}

// Wrap joins a sentinel kind with its cause so errors.Is matches both.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
