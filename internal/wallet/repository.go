package wallet

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no wallet matches the lookup.
	ErrNotFound = errors.New("wallet not found")

	// ErrAlreadyExists is returned when the owner already has a wallet.
	ErrAlreadyExists = errors.New("wallet already exists for owner")

	// ErrVersionConflict is returned by Save when the stored row changed
	// since it was read.
	ErrVersionConflict = errors.New("wallet was modified concurrently")
)

// Repository persists wallet state.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	FindByID(ctx context.Context, id string) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID string) (Wallet, error)
	// Lock re-reads the wallets and holds them exclusively until the
	// surrounding unit of work ends. Locks are taken in ascending id order.
	Lock(ctx context.Context, ids ...string) (map[string]Wallet, error)
	// Save writes balance and status if w.Version still matches the stored
	// row and returns the wallet with its new version.
	Save(ctx context.Context, w Wallet) (Wallet, error)
}
