package transaction

import (
	"time"

	"github.com/congo-pay/walletledger/internal/money"
)

// Type tells which direction a record moves money relative to its wallet.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
	TypeReceived   Type = "received"
)

// Status of a record. Only completed records are written by the engine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// MaxKeyLength bounds idempotency keys to what the storage column accepts.
const MaxKeyLength = 255

// Transaction is an immutable ledger record. Amount is always a non-negative
// magnitude; the direction comes from Type.
type Transaction struct {
	ID             string       `json:"id"`
	WalletID       string       `json:"wallet_id"`
	Amount         money.Amount `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
	Type           Type         `json:"transaction_type"`
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Credits reports whether the record adds to the wallet balance.
func (t Type) Credits() bool {
	return t == TypeDeposit || t == TypeReceived
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypeReceived:
		return true
	}
	return false
}

// Signed returns the amount with the sign implied by the record type.
func (t Transaction) Signed() money.Amount {
	if t.Type.Credits() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Page is one slice of a wallet's history, newest first.
type Page struct {
	Items      []Transaction `json:"data"`
	Total      int           `json:"total"`
	Page       int           `json:"current_page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
}

// NewPage fills in the derived page counters.
func NewPage(items []Transaction, total, page, limit int) Page {
	if items == nil {
		items = []Transaction{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page{Items: items, Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

// Offset returns the number of records skipped before the given 1-based page.
func Offset(page, limit int) int {
	return (page - 1) * limit
}
