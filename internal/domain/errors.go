package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountFrozen       = errors.New("account frozen")
	ErrAccountClosed       = errors.New("account closed")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransferDisabled    = errors.New("transfers disabled for this account or region")
	ErrInvalidCounterparty = errors.New("missing or malformed counterparty fields")
	ErrDuplicateRequest    = errors.New("duplicate transfer request")

	ErrChallengeExpired   = errors.New("otp challenge expired")
	ErrChallengeExhausted = errors.New("otp attempt budget exhausted")
	ErrCodeMismatch       = errors.New("otp code mismatch")

	ErrUnknownStep       = errors.New("unknown compliance step")
	ErrComplianceTimeout = errors.New("compliance window elapsed")

	ErrInvalidState     = errors.New("transfer not in a state permitting this operation")
	ErrAlreadyFinalized = errors.New("transfer already finalized")
	ErrVersionConflict  = errors.New("optimistic lock conflict")
	ErrRateLimited      = errors.New("too many requests")
)

// Settlement failure reasons recorded on the transfer row.
const (
	ReasonInsufficientFundsAtSettlement = "InsufficientFundsAtSettlement"
	ReasonComplianceTimeout             = "ComplianceTimeout"
	ReasonChallengeExpired              = "ChallengeExpired"
	ReasonChallengeExhausted            = "ChallengeExhausted"
)
