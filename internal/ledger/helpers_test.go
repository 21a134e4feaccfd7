package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/store"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// backends returns a constructor per store implementation under test.
// Postgres runs only when TEST_DATABASE_URL points at a scratch database.
func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	out := map[string]func(t *testing.T) store.Store{
		"memory": func(*testing.T) store.Store { return store.NewMemory() },
		"sqlite": func(t *testing.T) store.Store {
			ctx := context.Background()
			db, err := infra.NewSQLite(ctx, ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			s := store.NewSQLite(db)
			require.NoError(t, s.ApplySchema(ctx))
			return s
		},
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		out["postgres"] = func(t *testing.T) store.Store {
			ctx := context.Background()
			pool, err := infra.NewPostgresPool(ctx, url, 4)
			require.NoError(t, err)
			t.Cleanup(pool.Close)
			s := store.NewPostgres(pool)
			require.NoError(t, s.ApplySchema(ctx))
			_, err = pool.Exec(ctx, `TRUNCATE users CASCADE`)
			require.NoError(t, err)
			return s
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, st store.Store)) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

type fixture struct {
	st     store.Store
	engine *Engine
	clock  *stepClock
}

func newFixture(t *testing.T, st store.Store, opts ...Option) *fixture {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	engine := NewEngine(st, identity.NewDirectory(st.Users()), logging.Discard(), opts...)
	return &fixture{st: st, engine: engine, clock: clock}
}

// openAccount registers an owner with an empty active wallet and returns the owner id.
func (f *fixture) openAccount(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	ownerID := uuid.NewString()
	err := f.st.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Users().Create(ctx, identity.User{ID: ownerID, Email: email, PasswordHash: []byte("x"), CreatedAt: time.Now()}); err != nil {
			return err
		}
		return tx.Wallets().Create(ctx, wallet.New(uuid.NewString(), ownerID, time.Now()))
	})
	require.NoError(t, err)
	return ownerID
}

func (f *fixture) wallet(t *testing.T, ownerID string) wallet.Wallet {
	t.Helper()
	w, err := f.st.Wallets().FindByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	return w
}

func (f *fixture) setStatus(t *testing.T, ownerID string, status wallet.Status) {
	t.Helper()
	ctx := context.Background()
	w := f.wallet(t, ownerID)
	require.NoError(t, f.st.WithinTx(ctx, func(tx store.Store) error {
		w.Status = status
		_, err := tx.Wallets().Save(ctx, w)
		return err
	}))
}

// history returns every record of the owner, newest first.
func (f *fixture) history(t *testing.T, ownerID string) []transaction.Transaction {
	t.Helper()
	p, err := f.engine.History(context.Background(), ownerID, 1, DefaultMaxPageLimit)
	require.NoError(t, err)
	return p.Items
}

// requireIntegrity asserts balance == signed sum of completed records.
func (f *fixture) requireIntegrity(t *testing.T, ownerIDs ...string) {
	t.Helper()
	for _, ownerID := range ownerIDs {
		rec, err := f.engine.Reconcile(context.Background(), ownerID)
		require.NoError(t, err)
		require.True(t, rec.Balanced(), "owner %s: balance %s, ledger %s", ownerID, rec.Balance, rec.LedgerNet)
	}
}

// stepClock advances one second per reading so records get distinct timestamps.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// faultyStore injects failures into the repositories of a wrapped store.
type faultyStore struct {
	store.Store
	state *faultState
}

type faultState struct {
	mu sync.Mutex
	// failAppend returns a non-nil error to make Append fail for rec.
	failAppend func(rec transaction.Transaction) error
	// hiddenLookups makes the next n key lookups report ErrNotFound.
	hiddenLookups int
}

func newFaultyStore(inner store.Store) *faultyStore {
	return &faultyStore{Store: inner, state: &faultState{}}
}

func (f *faultyStore) Transactions() transaction.Repository {
	return faultyTransactions{Repository: f.Store.Transactions(), state: f.state}
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx store.Store) error {
		return fn(&faultyStore{Store: tx, state: f.state})
	})
}

type faultyTransactions struct {
	transaction.Repository
	state *faultState
}

func (r faultyTransactions) Append(ctx context.Context, rec transaction.Transaction) error {
	r.state.mu.Lock()
	fail := r.state.failAppend
	r.state.mu.Unlock()
	if fail != nil {
		if err := fail(rec); err != nil {
			return err
		}
	}
	return r.Repository.Append(ctx, rec)
}

func (r faultyTransactions) FindByIdempotencyKey(ctx context.Context, key string) (transaction.Transaction, error) {
	r.state.mu.Lock()
	hide := r.state.hiddenLookups > 0
	if hide {
		r.state.hiddenLookups--
	}
	r.state.mu.Unlock()
	if hide {
		return transaction.Transaction{}, transaction.ErrNotFound
	}
	return r.Repository.FindByIdempotencyKey(ctx, key)
}
