package identity

import (
	"context"
	"errors"
	"fmt"
)

// Directory answers owner lookups for the ledger engine.
type Directory struct {
	repo Repository
}

// NewDirectory wraps a user repository.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// OwnerExists reports whether a user with the id is registered.
func (d *Directory) OwnerExists(ctx context.Context, ownerID string) (bool, error) {
	if _, err := d.repo.FindByID(ctx, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup owner %s: %w", ownerID, err)
	}
	return true, nil
}

// OwnerByEmail resolves an email address to the owning user id.
func (d *Directory) OwnerByEmail(ctx context.Context, email string) (string, error) {
	user, err := d.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
