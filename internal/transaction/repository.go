package transaction

import (
	"context"
	"errors"
	"math"

	"github.com/congo-pay/walletledger/internal/money"
)

var (
	// ErrNotFound is returned when no record carries the requested key.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateKey is returned by Append when the idempotency key was
	// already committed. It is raised by the storage uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate idempotency key")

	// ErrInvalidPage rejects page < 1, limit < 1, and pages whose offset
	// does not fit in an int.
	ErrInvalidPage = errors.New("invalid page or limit")
)

// Repository is the append-only transaction ledger.
type Repository interface {
	Append(ctx context.Context, tx Transaction) error
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	FindPage(ctx context.Context, walletID string, page, limit int) (Page, error)
	// NetAmount sums the signed amounts of the wallet's completed records.
	NetAmount(ctx context.Context, walletID string) (money.Amount, error)
}

// ValidatePage checks pagination bounds shared by every backend.
func ValidatePage(page, limit int) error {
	if page < 1 || limit < 1 {
		return ErrInvalidPage
	}
	if page-1 > math.MaxInt/limit {
		return ErrInvalidPage
	}
	return nil
}
