package service

import "errors"

// Error taxonomy surfaced to callers. The transport layer maps these to HTTP
// status codes; nothing is retried or recovered locally.
var (
	// ErrValidation covers bad input shape: unknown currency or type,
	// non-positive amount, or a broken threshold invariant on create/update.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means the wallet or transaction id did not resolve.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means a non-member acted on a wallet's transaction.
	ErrForbidden = errors.New("user is not a wallet member")

	// ErrInvalidState means a vote was cast on a non-pending transaction.
	ErrInvalidState = errors.New("transaction is not pending")

	// ErrDuplicateVote means the user already appears in one of the
	// transaction's vote sets.
	ErrDuplicateVote = errors.New("user already voted on this transaction")

	// ErrInvariantViolation means an operation would break a wallet
	// invariant, e.g. deleting a wallet holding funds.
	ErrInvariantViolation = errors.New("operation violates wallet invariant")
)
