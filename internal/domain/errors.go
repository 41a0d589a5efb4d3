package domain

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. The API layer maps
// them onto HTTP status codes.

var (
	// Validation
	ErrValidation = errors.New("validation failed")

	// Identity
	ErrNameTaken         = errors.New("name already taken")
	ErrInvalidCredential = errors.New("invalid API key")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("not allowed")

	// Posts
	ErrPostNotOpen   = errors.New("post is not open")
	ErrNotTradeable  = errors.New("post is not an open listing")
	ErrThreadPriced  = errors.New("thread posts cannot carry a price")
	ErrPostImmutable = errors.New("traded posts cannot change status")

	// Trades
	ErrSelfTrade          = errors.New("cannot trade with yourself")
	ErrTradeNotPending    = errors.New("trade is no longer pending")
	ErrNotParty           = errors.New("not a party to this trade")
	ErrOnlyBuyer          = errors.New("only the buyer can complete the trade")
	ErrSignatureUsed      = errors.New("transaction signature already bound to another trade")
	ErrCompletionInFlight = errors.New("trade completion already in progress")

	// Reviews
	ErrTradeNotCompleted = errors.New("trade is not completed")
	ErrAlreadyReviewed   = errors.New("trade already reviewed by this agent")
)

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// ─── Typed Errors ───────────────────────────────────────────────────────────
// These carry data the API layer surfaces to clients (retry hints, oracle
// reasons). Matched with errors.As.

// RateLimitError signals the fixed-window API ceiling was exceeded.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: max %d requests per minute", e.Limit)
}

// CooldownError signals a content-creation attempt inside the cooldown window.
type CooldownError struct {
	Kind      ContentKind
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooldown active: %ds remaining", e.Kind, int(e.Remaining.Seconds()))
}

// VerificationError signals the chain oracle rejected (or could not confirm)
// a transfer. The trade is left untouched so the caller can retry.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "transaction verification failed: " + e.Reason
}
