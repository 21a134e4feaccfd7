// Package store provides the persistence backends behind the wallet,
// transaction and identity repositories, each with an atomic unit of work.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// ErrNotInTx is returned by operations that only make sense inside WithinTx.
var ErrNotInTx = errors.New("operation requires a unit of work")

// Store exposes the repositories of one backend. Repositories obtained from
// the Store passed to a WithinTx callback share that unit of work.
type Store interface {
	Users() identity.Repository
	Wallets() wallet.Repository
	Transactions() transaction.Repository
	// WithinTx commits every write made through tx when fn returns nil and
	// discards all of them otherwise. Calling it on tx joins the outer unit.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
