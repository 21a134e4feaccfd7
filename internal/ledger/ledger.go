// Package ledger moves money between wallets. Every balance change commits
// together with its transaction record in one unit of work, and every
// mutating call is deduplicated by a caller-supplied idempotency key.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/transaction"
)

var (
	// ErrInvalidArgument covers bad amounts, keys, page bounds and self-transfers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound occurs when the owner or its wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed signals a replay of a committed idempotency key.
	// The returned error is an *AlreadyProcessedError holding the prior record.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletInactive rejects balance changes on inactive or suspended wallets.
	ErrWalletInactive = errors.New("wallet is not active")

	// ErrCommitFailed means the unit of work did not complete and nothing was
	// written. Retrying with the same idempotency key is safe.
	ErrCommitFailed = errors.New("commit failed")
)

const (
	// KeySeparator is reserved for derived keys and rejected in caller keys.
	KeySeparator = ":"

	// CreditSuffix marks the recipient leg of a transfer.
	CreditSuffix = KeySeparator + "credit"

	// DefaultMaxPageLimit caps history page sizes.
	DefaultMaxPageLimit = 100
)

var (
	// MinDeposit is the smallest accepted deposit (500 minor units).
	MinDeposit = money.FromMinor(500)

	// MinTransfer is the smallest transfer accepted at the request boundary
	// (500 minor units). The engine itself only requires a positive amount.
	MinTransfer = money.FromMinor(500)
)

// AlreadyProcessedError carries the record committed under a replayed key.
type AlreadyProcessedError struct {
	Transaction transaction.Transaction
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("idempotency key %q already processed: %s %s",
		e.Transaction.IdempotencyKey, e.Transaction.Type, e.Transaction.Status)
}

// Is makes errors.Is(err, ErrAlreadyProcessed) hold.
func (e *AlreadyProcessedError) Is(target error) bool {
	return target == ErrAlreadyProcessed
}

// Status is the outcome recorded for the original request.
func (e *AlreadyProcessedError) Status() transaction.Status {
	return e.Transaction.Status
}

// ValidateKey checks a caller-supplied idempotency key.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return invalidf("idempotency key is required")
	case len(key) > transaction.MaxKeyLength-len(CreditSuffix):
		return invalidf("idempotency key must be at most %d characters", transaction.MaxKeyLength-len(CreditSuffix))
	case strings.Contains(key, KeySeparator):
		return invalidf("idempotency key must not contain %q", KeySeparator)
	}
	return nil
}

// CreditKey derives the key of a transfer's recipient leg.
func CreditKey(key string) string {
	return key + CreditSuffix
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFound(what string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrNotFound, what, cause)
}

// rejection reports whether err is a domain decision rather than a fault.
func rejection(err error) bool {
	for _, target := range []error{ErrInvalidArgument, ErrNotFound, ErrAlreadyProcessed, ErrInsufficientFunds, ErrWalletInactive} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
