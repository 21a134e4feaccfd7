package wallet

import (
	"time"

	"github.com/congo-pay/walletledger/internal/money"
)

// Status gates which operations a wallet accepts.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Wallet holds the current balance of exactly one owner.
type Wallet struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Balance   money.Amount `json:"balance"`
	Status    Status       `json:"status"`
	Version   int64        `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// New returns an active, empty wallet for the owner.
func New(id, ownerID string, now time.Time) Wallet {
	now = now.UTC()
	return Wallet{
		ID:        id,
		OwnerID:   ownerID,
		Balance:   money.Zero,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the wallet accepts balance changes.
func (w Wallet) Active() bool {
	return w.Status == StatusActive
}
