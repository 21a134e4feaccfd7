package store

import (
	"sort"

	"github.com/congo-pay/walletledger/internal/transaction"
)

// sortNewestFirst orders by CreatedAt descending, keeping the incoming order
// for records committed at the same instant.
func sortNewestFirst(records []transaction.Transaction) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
