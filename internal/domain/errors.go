package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies presale failures.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindWindow        ErrorKind = "window"
	KindFunds         ErrorKind = "funds"
	KindSupply        ErrorKind = "supply"
	KindState         ErrorKind = "state"
	KindInput         ErrorKind = "input"
)

// Error is a presale failure with a stable, caller-visible reason.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Presale errors. Reasons of the purchase and claim paths are part of the
// public contract and must not change.
var (
	ErrNotOwner = &Error{Kind: KindAuthorization, Reason: "NotOwner"}

	ErrInvalidPurchaseWindow = &Error{Kind: KindWindow, Reason: "Invalid time for buying the token."}
	ErrClaimWindowNotOpen    = &Error{Kind: KindWindow, Reason: "It's not claiming time yet."}
	ErrSaleNotEnded          = &Error{Kind: KindWindow, Reason: "Presale is still in progress."}
	ErrFundingClosed         = &Error{Kind: KindWindow, Reason: "Presale funding is closed."}

	ErrInsufficientAllowance = &Error{Kind: KindFunds, Reason: "Insufficient allowance set for the contract."}
	ErrInsufficientBalance   = &Error{Kind: KindFunds, Reason: "Insufficient balance."}

	ErrInsufficientSupply = &Error{Kind: KindSupply, Reason: "Not enough tokens available."}

	ErrNothingToClaim    = &Error{Kind: KindState, Reason: "No tokens claim."}
	ErrAlreadySettled    = &Error{Kind: KindState, Reason: "Presale is already settled."}
	ErrSoftCapReached    = &Error{Kind: KindState, Reason: "Soft cap reached, refund is not available."}
	ErrSoftCapNotReached = &Error{Kind: KindState, Reason: "Soft cap not reached, withdraw is not available."}
	ErrSaleRefunded      = &Error{Kind: KindState, Reason: "Presale was refunded."}
	ErrClaimsLocked      = &Error{Kind: KindState, Reason: "Soft cap not reached, claiming is not available."}
	ErrReentrantCall     = &Error{Kind: KindState, Reason: "Reentrant call."}
	ErrEngineBusy        = &Error{Kind: KindState, Reason: "Presale is busy, try again."}

	// ErrTransferUnconfirmed reports a committed version whose transfer may or
	// may not have reached the asset ledger. It must be reconciled by hand.
	ErrTransferUnconfirmed = &Error{Kind: KindState, Reason: "Transfer outcome unknown, reconcile before retrying."}

	ErrInvalidAmount    = &Error{Kind: KindInput, Reason: "Invalid amount."}
	ErrInvalidClaimTime = &Error{Kind: KindInput, Reason: "Claim time must not precede the end of the presale."}
	ErrUnknownAsset     = &Error{Kind: KindInput, Reason: "Unknown asset."}
	ErrInvalidAddress   = &Error{Kind: KindInput, Reason: "Invalid address."}
)

// NotOwnerError is returned when an owner-only entry point is called by
// anyone else. It matches ErrNotOwner with errors.Is.
type NotOwnerError struct {
	Caller Address
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("NotOwner: caller %s", e.Caller)
}

func (e *NotOwnerError) Unwrap() error {
	return ErrNotOwner
}

// KindOf returns the kind of a presale error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the caller-visible reason of a presale error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
