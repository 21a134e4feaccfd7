package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Memory is an in-process backend. Units of work run one at a time and their
// writes stay invisible until commit.
type Memory struct {
	work sync.Mutex

	mu             sync.RWMutex
	users          map[string]identity.User
	usersByEmail   map[string]string
	wallets        map[string]wallet.Wallet
	walletsByOwner map[string]string
	records        []transaction.Transaction
	keys           map[string]int
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		users:          make(map[string]identity.User),
		usersByEmail:   make(map[string]string),
		wallets:        make(map[string]wallet.Wallet),
		walletsByOwner: make(map[string]string),
		keys:           make(map[string]int),
	}
}

// memoryTx holds the writes staged by one unit of work.
type memoryTx struct {
	users   []identity.User
	wallets map[string]wallet.Wallet
	created map[string]bool
	records []transaction.Transaction
	keys    map[string]struct{}
}

// memoryView is a Store bound to the committed state or to one unit of work.
type memoryView struct {
	m  *Memory
	tx *memoryTx
}

func (m *Memory) Users() identity.Repository          { return memoryView{m: m}.Users() }
func (m *Memory) Wallets() wallet.Repository          { return memoryView{m: m}.Wallets() }
func (m *Memory) Transactions() transaction.Repository { return memoryView{m: m}.Transactions() }
func (m *Memory) Ping(context.Context) error           { return nil }

// WithinTx runs fn as one serialized unit of work.
func (m *Memory) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return memoryView{m: m}.WithinTx(ctx, fn)
}

func (v memoryView) Users() identity.Repository          { return memoryUsers{v} }
func (v memoryView) Wallets() wallet.Repository          { return memoryWallets{v} }
func (v memoryView) Transactions() transaction.Repository { return memoryTransactions{v} }
func (v memoryView) Ping(context.Context) error           { return nil }

func (v memoryView) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if v.tx != nil {
		return fn(v)
	}
	v.m.work.Lock()
	defer v.m.work.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		wallets: make(map[string]wallet.Wallet),
		created: make(map[string]bool),
		keys:    make(map[string]struct{}),
	}
	if err := fn(memoryView{m: v.m, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	v.m.commit(tx)
	return nil
}

func (m *Memory) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range tx.users {
		m.users[u.ID] = u
		m.usersByEmail[u.Email] = u.ID
	}
	for id, w := range tx.wallets {
		m.wallets[id] = w
		if tx.created[id] {
			m.walletsByOwner[w.OwnerID] = id
		}
	}
	for _, r := range tx.records {
		m.keys[r.IdempotencyKey] = len(m.records)
		m.records = append(m.records, r)
	}
}

type memoryUsers struct{ v memoryView }

func (r memoryUsers) Create(ctx context.Context, user identity.User) error {
	return r.v.WithinTx(ctx, func(tx Store) error {
		t := tx.(memoryView).tx
		if _, err := r.FindByEmail(ctx, user.Email); err == nil {
			return identity.ErrEmailTaken
		}
		for _, staged := range t.users {
			if staged.Email == user.Email {
				return identity.ErrEmailTaken
			}
		}
		t.users = append(t.users, user)
		return nil
	})
}

func (r memoryUsers) FindByID(_ context.Context, id string) (identity.User, error) {
	if r.v.tx != nil {
		for _, u := range r.v.tx.users {
			if u.ID == id {
				return u, nil
			}
		}
	}
	r.v.m.mu.RLock()
	defer r.v.m.mu.RUnlock()
	u, ok := r.v.m.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (r memoryUsers) FindByEmail(_ context.Context, email string) (identity.User, error) {
	if r.v.tx != nil {
		for _, u := range r.v.tx.users {
			if u.Email == email {
				return u, nil
			}
		}
	}
	r.v.m.mu.RLock()
	defer r.v.m.mu.RUnlock()
	id, ok := r.v.m.usersByEmail[email]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return r.v.m.users[id], nil
}

type memoryWallets struct{ v memoryView }

func (r memoryWallets) Create(ctx context.Context, w wallet.Wallet) error {
	return r.v.WithinTx(ctx, func(tx Store) error {
		t := tx.(memoryView).tx
		if _, err := r.FindByOwner(ctx, w.OwnerID); err == nil {
			return wallet.ErrAlreadyExists
		}
		for id := range t.created {
			if t.wallets[id].OwnerID == w.OwnerID {
				return wallet.ErrAlreadyExists
			}
		}
		t.wallets[w.ID] = w
		t.created[w.ID] = true
		return nil
	})
}

func (r memoryWallets) FindByID(_ context.Context, id string) (wallet.Wallet, error) {
	if r.v.tx != nil {
		if w, ok := r.v.tx.wallets[id]; ok {
			return w, nil
		}
	}
	r.v.m.mu.RLock()
	defer r.v.m.mu.RUnlock()
	w, ok := r.v.m.wallets[id]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

func (r memoryWallets) FindByOwner(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	if r.v.tx != nil {
		for id := range r.v.tx.created {
			if w := r.v.tx.wallets[id]; w.OwnerID == ownerID {
				return w, nil
			}
		}
	}
	r.v.m.mu.RLock()
	id, ok := r.v.m.walletsByOwner[ownerID]
	r.v.m.mu.RUnlock()
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// Lock needs no bookkeeping here: the unit of work already runs alone.
func (r memoryWallets) Lock(ctx context.Context, ids ...string) (map[string]wallet.Wallet, error) {
	if r.v.tx == nil {
		return nil, ErrNotInTx
	}
	out := make(map[string]wallet.Wallet, len(ids))
	for _, id := range sortedUnique(ids) {
		w, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (r memoryWallets) Save(ctx context.Context, w wallet.Wallet) (wallet.Wallet, error) {
	var saved wallet.Wallet
	err := r.v.WithinTx(ctx, func(tx Store) error {
		t := tx.(memoryView).tx
		current, err := memoryWallets{tx.(memoryView)}.FindByID(ctx, w.ID)
		if err != nil {
			return err
		}
		if current.Version != w.Version {
			return wallet.ErrVersionConflict
		}
		saved = current
		saved.Balance = w.Balance
		saved.Status = w.Status
		saved.UpdatedAt = w.UpdatedAt
		saved.Version++
		t.wallets[w.ID] = saved
		return nil
	})
	return saved, err
}

type memoryTransactions struct{ v memoryView }

func (r memoryTransactions) Append(ctx context.Context, rec transaction.Transaction) error {
	return r.v.WithinTx(ctx, func(tx Store) error {
		t := tx.(memoryView).tx
		if _, staged := t.keys[rec.IdempotencyKey]; staged {
			return transaction.ErrDuplicateKey
		}
		r.v.m.mu.RLock()
		_, committed := r.v.m.keys[rec.IdempotencyKey]
		r.v.m.mu.RUnlock()
		if committed {
			return transaction.ErrDuplicateKey
		}
		t.keys[rec.IdempotencyKey] = struct{}{}
		t.records = append(t.records, rec)
		return nil
	})
}

func (r memoryTransactions) FindByIdempotencyKey(_ context.Context, key string) (transaction.Transaction, error) {
	if r.v.tx != nil {
		for _, rec := range r.v.tx.records {
			if rec.IdempotencyKey == key {
				return rec, nil
			}
		}
	}
	r.v.m.mu.RLock()
	defer r.v.m.mu.RUnlock()
	idx, ok := r.v.m.keys[key]
	if !ok {
		return transaction.Transaction{}, transaction.ErrNotFound
	}
	return r.v.m.records[idx], nil
}

// walletRecords returns the wallet's records oldest first, staged ones last.
func (r memoryTransactions) walletRecords(walletID string) []transaction.Transaction {
	var out []transaction.Transaction
	r.v.m.mu.RLock()
	for _, rec := range r.v.m.records {
		if rec.WalletID == walletID {
			out = append(out, rec)
		}
	}
	r.v.m.mu.RUnlock()
	if r.v.tx != nil {
		for _, rec := range r.v.tx.records {
			if rec.WalletID == walletID {
				out = append(out, rec)
			}
		}
	}
	return out
}

func (r memoryTransactions) FindPage(_ context.Context, walletID string, page, limit int) (transaction.Page, error) {
	if err := transaction.ValidatePage(page, limit); err != nil {
		return transaction.Page{}, err
	}
	all := r.walletRecords(walletID)
	// Append order is commit order; sort newest first and keep that order for ties.
	newest := make([]transaction.Transaction, len(all))
	for i, rec := range all {
		newest[len(all)-1-i] = rec
	}
	sortNewestFirst(newest)

	start := transaction.Offset(page, limit)
	if start > len(newest) {
		start = len(newest)
	}
	end := start + limit
	if end > len(newest) {
		end = len(newest)
	}
	items := append([]transaction.Transaction(nil), newest[start:end]...)
	return transaction.NewPage(items, len(newest), page, limit), nil
}

func (r memoryTransactions) NetAmount(_ context.Context, walletID string) (money.Amount, error) {
	net := money.Zero
	for _, rec := range r.walletRecords(walletID) {
		if rec.Status == transaction.StatusCompleted {
			net = net.Add(rec.Signed())
		}
	}
	return net, nil
}
