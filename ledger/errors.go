// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"errors"
	"fmt"

	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/fixedpoint"
)

// RejectionKind classifies why a group was rejected
type RejectionKind uint8

const (
	// KindValidation is an unmet precondition. The caller may resubmit with
	// corrected inputs against the latest state.
	KindValidation RejectionKind = iota + 1
	// KindAuthorization is a wrong caller for a restricted operation
	KindAuthorization
	// KindArithmetic is an overflow, division by zero or negative
	// entitlement. It indicates a broken invariant and must not be retried.
	KindArithmetic
)

func (k RejectionKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindArithmetic:
		return "arithmetic"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Reason names a rejection
type Reason string

// RejectionError is returned when a group is not applied. The input state is
// left untouched.
type RejectionError struct {
	Reason Reason
	Kind   RejectionKind
	Detail string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Is matches any RejectionError with the same reason
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

func newRejection(reason Reason, kind RejectionKind) *RejectionError {
	return &RejectionError{Reason: reason, Kind: kind}
}

var (
	ErrInsufficientEntitlement = newRejection("InsufficientEntitlement", KindValidation)
	ErrInsufficientFunds       = newRejection("InsufficientFunds", KindValidation)
	ErrInsufficientShares      = newRejection("InsufficientShares", KindValidation)
	ErrRaiseStillOpen          = newRejection("RaiseStillOpen", KindValidation)
	ErrRaiseClosed             = newRejection("RaiseClosed", KindValidation)
	ErrRaiseNotSucceeded       = newRejection("RaiseNotSucceeded", KindValidation)
	ErrRaiseNotFailed          = newRejection("RaiseNotFailed", KindValidation)
	ErrSlotNotFree             = newRejection("SlotNotFree", KindValidation)
	ErrSlotNotRequested        = newRejection("SlotNotRequested", KindValidation)
	ErrSlotOutOfRange          = newRejection("SlotOutOfRange", KindValidation)
	ErrAlreadyVoted            = newRejection("AlreadyVoted", KindValidation)
	ErrVoteThresholdNotMet     = newRejection("VoteThresholdNotMet", KindValidation)
	ErrAlreadyExists           = newRejection("AlreadyExists", KindValidation)
	ErrNotFound                = newRejection("NotFound", KindValidation)
	ErrAlreadySetup            = newRejection("AlreadySetup", KindValidation)
	ErrNotSetup                = newRejection("NotSetup", KindValidation)
	ErrAlreadyOptedIn          = newRejection("AlreadyOptedIn", KindValidation)
	ErrNotOptedIn              = newRejection("NotOptedIn", KindValidation)
	ErrNoShares                = newRejection("NoShares", KindValidation)
	ErrRefundPending           = newRejection("RefundPending", KindValidation)
	ErrInvalidAmount           = newRejection("InvalidAmount", KindValidation)
	ErrInvalidParameter        = newRejection("InvalidParameter", KindValidation)
	ErrPaymentMismatch         = newRejection("PaymentMismatch", KindValidation)
	ErrNothingToDrain          = newRejection("NothingToDrain", KindValidation)
	ErrUnknownOperation        = newRejection("UnknownOperation", KindValidation)

	ErrUnauthorized = newRejection("Unauthorized", KindAuthorization)

	ErrOverflow            = newRejection("Overflow", KindArithmetic)
	ErrDivisionByZero      = newRejection("DivisionByZero", KindArithmetic)
	ErrNegativeEntitlement = newRejection("NegativeEntitlement", KindArithmetic)
	ErrInvariantViolation  = newRejection("InvariantViolation", KindArithmetic)
)

func reject(base *RejectionError, format string, args ...any) error {
	return &RejectionError{
		Reason: base.Reason,
		Kind:   base.Kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// arithmeticFault converts an error from the fixedpoint or escrow layers into
// an arithmetic rejection. Errors that are already rejections pass through.
func arithmeticFault(err error) error {
	if err == nil {
		return nil
	}
	var rejErr *RejectionError
	if errors.As(err, &rejErr) {
		return err
	}
	base := ErrOverflow
	switch {
	case errors.Is(err, fixedpoint.ErrDivisionByZero):
		base = ErrDivisionByZero
	case errors.Is(err, fixedpoint.ErrUnderflow):
		base = ErrNegativeEntitlement
	case errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrInvalidAccount):
		base = ErrInvariantViolation
	}
	return &RejectionError{
		Reason: base.Reason,
		Kind:   KindArithmetic,
		Detail: err.Error(),
		Err:    err,
	}
}

// KindOf returns the rejection kind of err, or 0 if err is not a rejection
func KindOf(err error) RejectionKind {
	var rejErr *RejectionError
	if errors.As(err, &rejErr) {
		return rejErr.Kind
	}
	return 0
}

// IsFatal reports whether err is an arithmetic fault that must be surfaced to
// the host rather than retried
func IsFatal(err error) bool {
	return KindOf(err) == KindArithmetic
}

// IsRecoverable reports whether the caller may resubmit a corrected group
func IsRecoverable(err error) bool {
	return KindOf(err) == KindValidation
}
