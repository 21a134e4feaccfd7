package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// SQLite persists everything in a single SQLite database. Open the database
// with _txlock=immediate so every unit of work holds the write lock from
// its first statement.
type SQLite struct {
	db   *sqlx.DB
	q    sqlx.ExtContext
	inTx bool
}

// NewSQLite wraps an open database handle.
func NewSQLite(db *sqlx.DB) *SQLite {
	return &SQLite{db: db, q: db}
}

// ApplySchema creates the tables if they do not exist yet.
func (s *SQLite) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) Users() identity.Repository          { return sqliteUsers{q: s.q} }
func (s *SQLite) Wallets() wallet.Repository          { return sqliteWallets{q: s.q, inTx: s.inTx} }
func (s *SQLite) Transactions() transaction.Repository { return sqliteTransactions{q: s.q} }

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn inside a database transaction.
func (s *SQLite) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := fn(&SQLite{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

type sqliteUser struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash []byte `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

type sqliteUsers struct{ q sqlx.ExtContext }

func (r sqliteUsers) Create(ctx context.Context, user identity.User) error {
	_, err := r.q.ExecContext(ctx, sqliteInsertUser, user.ID, user.Email, user.PasswordHash, unixNano(user.CreatedAt))
	if isSQLiteUniqueViolation(err) {
		return identity.ErrEmailTaken
	}
	return err
}

func (r sqliteUsers) FindByID(ctx context.Context, id string) (identity.User, error) {
	return r.get(ctx, sqliteSelectUserByID, id)
}

func (r sqliteUsers) FindByEmail(ctx context.Context, email string) (identity.User, error) {
	return r.get(ctx, sqliteSelectUserByEmail, email)
}

func (r sqliteUsers) get(ctx context.Context, query string, arg any) (identity.User, error) {
	var row sqliteUser
	if err := sqlx.GetContext(ctx, r.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, err
	}
	return identity.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    fromUnixNano(row.CreatedAt),
	}, nil
}

type sqliteWallet struct {
	ID           string `db:"id"`
	OwnerID      string `db:"owner_id"`
	BalanceMinor int64  `db:"balance_minor"`
	Status       string `db:"status"`
	Version      int64  `db:"version"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (row sqliteWallet) wallet() wallet.Wallet {
	return wallet.Wallet{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Balance:   money.FromMinor(row.BalanceMinor),
		Status:    wallet.Status(row.Status),
		Version:   row.Version,
		CreatedAt: fromUnixNano(row.CreatedAt),
		UpdatedAt: fromUnixNano(row.UpdatedAt),
	}
}

type sqliteWallets struct {
	q    sqlx.ExtContext
	inTx bool
}

func (r sqliteWallets) Create(ctx context.Context, w wallet.Wallet) error {
	_, err := r.q.ExecContext(ctx, sqliteInsertWallet, w.ID, w.OwnerID, w.Balance.Minor(), string(w.Status), w.Version, unixNano(w.CreatedAt), unixNano(w.UpdatedAt))
	if isSQLiteUniqueViolation(err) {
		return wallet.ErrAlreadyExists
	}
	return err
}

func (r sqliteWallets) FindByID(ctx context.Context, id string) (wallet.Wallet, error) {
	return r.get(ctx, sqliteSelectWalletByID, id)
}

func (r sqliteWallets) FindByOwner(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	return r.get(ctx, sqliteSelectWalletByOwner, ownerID)
}

func (r sqliteWallets) get(ctx context.Context, query string, arg any) (wallet.Wallet, error) {
	var row sqliteWallet
	if err := sqlx.GetContext(ctx, r.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		return wallet.Wallet{}, err
	}
	return row.wallet(), nil
}

// Lock re-reads the wallets. The immediate transaction already holds the
// database write lock, so no row-level locking is needed.
func (r sqliteWallets) Lock(ctx context.Context, ids ...string) (map[string]wallet.Wallet, error) {
	if !r.inTx {
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

func (r sqliteWallets) Save(ctx context.Context, w wallet.Wallet) (wallet.Wallet, error) {
	res, err := r.q.ExecContext(ctx, sqliteUpdateWallet, w.Balance.Minor(), string(w.Status), unixNano(w.UpdatedAt), w.ID, w.Version)
	if err != nil {
		return wallet.Wallet{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wallet.Wallet{}, err
	}
	if n == 0 {
		return wallet.Wallet{}, wallet.ErrVersionConflict
	}
	w.Version++
	return w, nil
}

type sqliteTransaction struct {
	ID             string `db:"id"`
	WalletID       string `db:"wallet_id"`
	AmountMinor    int64  `db:"amount_minor"`
	IdempotencyKey string `db:"idempotency_key"`
	Type           string `db:"transaction_type"`
	Status         string `db:"status"`
	CreatedAt      int64  `db:"created_at"`
}

func (row sqliteTransaction) transaction() transaction.Transaction {
	return transaction.Transaction{
		ID:             row.ID,
		WalletID:       row.WalletID,
		Amount:         money.FromMinor(row.AmountMinor),
		IdempotencyKey: row.IdempotencyKey,
		Type:           transaction.Type(row.Type),
		Status:         transaction.Status(row.Status),
		CreatedAt:      fromUnixNano(row.CreatedAt),
	}
}

type sqliteTransactions struct{ q sqlx.ExtContext }

func (r sqliteTransactions) Append(ctx context.Context, t transaction.Transaction) error {
	_, err := r.q.ExecContext(ctx, sqliteInsertTransaction, t.ID, t.WalletID, t.Amount.Minor(), t.IdempotencyKey, string(t.Type), string(t.Status), unixNano(t.CreatedAt))
	if isSQLiteUniqueViolation(err) {
		return transaction.ErrDuplicateKey
	}
	return err
}

func (r sqliteTransactions) FindByIdempotencyKey(ctx context.Context, key string) (transaction.Transaction, error) {
	var row sqliteTransaction
	if err := sqlx.GetContext(ctx, r.q, &row, sqliteSelectTransactionByKey, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.Transaction{}, transaction.ErrNotFound
		}
		return transaction.Transaction{}, err
	}
	return row.transaction(), nil
}

func (r sqliteTransactions) FindPage(ctx context.Context, walletID string, page, limit int) (transaction.Page, error) {
	if err := transaction.ValidatePage(page, limit); err != nil {
		return transaction.Page{}, err
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, sqliteCountTransactions, walletID); err != nil {
		return transaction.Page{}, err
	}

	var rows []sqliteTransaction
	if err := sqlx.SelectContext(ctx, r.q, &rows, sqliteSelectTransactionPage, walletID, limit, transaction.Offset(page, limit)); err != nil {
		return transaction.Page{}, err
	}

	items := make([]transaction.Transaction, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.transaction())
	}
	return transaction.NewPage(items, total, page, limit), nil
}

func (r sqliteTransactions) NetAmount(ctx context.Context, walletID string) (money.Amount, error) {
	var net int64
	if err := sqlx.GetContext(ctx, r.q, &net, sqliteNetAmount, walletID); err != nil {
		return money.Zero, err
	}
	return money.FromMinor(net), nil
}
