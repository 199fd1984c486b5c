package engine

import "errors"

// Every failure surfaces as one of these named reasons so callers can tell
// "retry later" (state and freshness errors) from "this will never succeed"
// (validation and authorization errors). Nothing here retries on its own.
var (
	// Validation errors.
	ErrInvalidInput     = errors.New("invalid input value")
	ErrInputTooLong     = errors.New("input exceeds maximum length")
	ErrInvalidSessionID = errors.New("invalid session id format")
	ErrInvalidIdentity  = errors.New("invalid identity public key")

	// Authorization errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnauthorizedJudge   = errors.New("decision not signed by judge authority")
	ErrInvalidSignature    = errors.New("invalid decision signature")
	ErrInvalidDecisionHash = errors.New("decision hash mismatch")

	// Replay / freshness errors.
	ErrInvalidTimestamp    = errors.New("invalid decision timestamp")
	ErrTimestampOutOfRange = errors.New("decision timestamp outside freshness window")
	ErrDuplicateEntry      = errors.New("entry nonce already used")

	// State errors.
	ErrLedgerExists           = errors.New("ledger already initialized")
	ErrLedgerNotFound         = errors.New("ledger not found")
	ErrEntryNotFound          = errors.New("entry not found")
	ErrOperationInProgress    = errors.New("settlement operation already in progress")
	ErrEscapePlanNotReady     = errors.New("escape plan timeout window has not elapsed")
	ErrNoParticipants         = errors.New("no entries to distribute to")
	ErrRecoveryCooldownActive = errors.New("recovery attempted too soon")
	ErrInsufficientFunds      = errors.New("insufficient funds")

	// Arithmetic errors.
	ErrArithmeticOverflow   = errors.New("checked arithmetic overflow")
	ErrSplitMismatch        = errors.New("split shares do not sum to amount")
	ErrRecoveryExceedsLimit = errors.New("exceeds maximum recovery amount")
)

// Retryable reports whether the error is a transient state or freshness
// condition that a caller may reasonably retry, as opposed to a validation
// or authorization failure that will never succeed unchanged.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrOperationInProgress),
		errors.Is(err, ErrEscapePlanNotReady),
		errors.Is(err, ErrRecoveryCooldownActive),
		errors.Is(err, ErrTimestampOutOfRange):
		return true
	}
	return false
}
