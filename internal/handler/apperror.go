package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrTransferDisabled    = &AppError{http.StatusForbidden, "TRANSFER_DISABLED", "Transfers are disabled for this account or region"}
	ErrInvalidCounterparty = &AppError{http.StatusBadRequest, "INVALID_COUNTERPARTY", "Missing or malformed counterparty fields"}
	ErrDuplicateRequest    = &AppError{http.StatusConflict, "DUPLICATE_REQUEST", "A transfer with this idempotency key already exists"}
	ErrAccountFrozen       = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_FROZEN", "Account is frozen"}
	ErrAccountClosed       = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_CLOSED", "Account is closed"}
	ErrAccountNotFound     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrInvalidCurrency     = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}

	ErrChallengeExpired   = &AppError{http.StatusUnprocessableEntity, "CHALLENGE_EXPIRED", "OTP challenge has expired; the transfer was failed"}
	ErrChallengeExhausted = &AppError{http.StatusUnprocessableEntity, "CHALLENGE_EXHAUSTED", "Too many incorrect codes; the transfer was failed"}
	ErrCodeMismatch       = &AppError{http.StatusUnprocessableEntity, "CODE_MISMATCH", "Incorrect OTP code"}

	ErrUnknownStep       = &AppError{http.StatusBadRequest, "UNKNOWN_STEP", "Unknown compliance step"}
	ErrComplianceTimeout = &AppError{http.StatusUnprocessableEntity, "COMPLIANCE_TIMEOUT", "Compliance window elapsed; the transfer was failed"}

	ErrInvalidState     = &AppError{http.StatusConflict, "INVALID_STATE", "Transfer is not in a state permitting this operation"}
	ErrAlreadyFinalized = &AppError{http.StatusConflict, "ALREADY_FINALIZED", "Transfer has already been finalized"}
	ErrVersionConflict  = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrRateLimited      = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
