package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

const pgUniqueViolation = "23505"

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists users, wallets and transactions in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	q    pgQuerier
	inTx bool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// ApplySchema creates the tables if they do not exist yet.
func (s *Postgres) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (s *Postgres) Users() identity.Repository          { return pgUsers{q: s.q} }
func (s *Postgres) Wallets() wallet.Repository          { return pgWallets{q: s.q, inTx: s.inTx} }
func (s *Postgres) Transactions() transaction.Repository { return pgTransactions{q: s.q} }

// Ping checks connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithinTx runs fn inside a database transaction.
func (s *Postgres) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&Postgres{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type pgUsers struct{ q pgQuerier }

func (r pgUsers) Create(ctx context.Context, user identity.User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	_, err = r.q.Exec(ctx, pgInsertUser, userID, user.Email, user.PasswordHash, user.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return identity.ErrEmailTaken
	}
	return err
}

func (r pgUsers) FindByID(ctx context.Context, id string) (identity.User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return identity.User{}, identity.ErrNotFound
	}
	return scanUser(r.q.QueryRow(ctx, pgSelectUserByID, userID))
}

func (r pgUsers) FindByEmail(ctx context.Context, email string) (identity.User, error) {
	return scanUser(r.q.QueryRow(ctx, pgSelectUserByEmail, email))
}

func scanUser(row pgx.Row) (identity.User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		user      identity.User
	)
	if err := row.Scan(&id, &user.Email, &user.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

type pgWallets struct {
	q    pgQuerier
	inTx bool
}

func (r pgWallets) Create(ctx context.Context, w wallet.Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return fmt.Errorf("wallet id: %w", err)
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return fmt.Errorf("owner id: %w", err)
	}
	_, err = r.q.Exec(ctx, pgInsertWallet, walletID, ownerID, w.Balance.String(), string(w.Status), w.Version, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return wallet.ErrAlreadyExists
	}
	return err
}

func (r pgWallets) FindByID(ctx context.Context, id string) (wallet.Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return scanWallet(r.q.QueryRow(ctx, pgSelectWalletByID, walletID))
}

func (r pgWallets) FindByOwner(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return scanWallet(r.q.QueryRow(ctx, pgSelectWalletByOwner, owner))
}

// Lock takes row locks one wallet at a time in ascending id order so two
// transfers in opposite directions cannot deadlock.
func (r pgWallets) Lock(ctx context.Context, ids ...string) (map[string]wallet.Wallet, error) {
	if !r.inTx {
		return nil, ErrNotInTx
	}
	out := make(map[string]wallet.Wallet, len(ids))
	for _, id := range sortedUnique(ids) {
		walletID, err := uuid.Parse(id)
		if err != nil {
			return nil, wallet.ErrNotFound
		}
		w, err := scanWallet(r.q.QueryRow(ctx, pgLockWallet, walletID))
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (r pgWallets) Save(ctx context.Context, w wallet.Wallet) (wallet.Wallet, error) {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	cmd, err := r.q.Exec(ctx, pgUpdateWallet, w.Balance.String(), string(w.Status), w.UpdatedAt.UTC(), walletID, w.Version)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if cmd.RowsAffected() == 0 {
		return wallet.Wallet{}, wallet.ErrVersionConflict
	}
	w.Version++
	return w, nil
}

func scanWallet(row pgx.Row) (wallet.Wallet, error) {
	var (
		id, ownerID          uuid.UUID
		balance, status      string
		createdAt, updatedAt time.Time
		w                    wallet.Wallet
	)
	if err := row.Scan(&id, &ownerID, &balance, &status, &w.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		return wallet.Wallet{}, err
	}
	amount, err := money.Parse(balance)
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("wallet %s balance: %w", id, err)
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.Balance = amount
	w.Status = wallet.Status(status)
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

type pgTransactions struct{ q pgQuerier }

func (r pgTransactions) Append(ctx context.Context, t transaction.Transaction) error {
	txID, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	walletID, err := uuid.Parse(t.WalletID)
	if err != nil {
		return fmt.Errorf("wallet id: %w", err)
	}
	_, err = r.q.Exec(ctx, pgInsertTransaction, txID, walletID, t.Amount.String(), t.IdempotencyKey, string(t.Type), string(t.Status), t.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return transaction.ErrDuplicateKey
	}
	return err
}

func (r pgTransactions) FindByIdempotencyKey(ctx context.Context, key string) (transaction.Transaction, error) {
	return scanTransaction(r.q.QueryRow(ctx, pgSelectTransactionByKey, key))
}

func (r pgTransactions) FindPage(ctx context.Context, walletID string, page, limit int) (transaction.Page, error) {
	if err := transaction.ValidatePage(page, limit); err != nil {
		return transaction.Page{}, err
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return transaction.NewPage(nil, 0, page, limit), nil
	}

	// Outside a unit of work, count and rows come from one snapshot so
	// Total always agrees with Items.
	pool, ok := r.q.(*pgxpool.Pool)
	if !ok {
		return r.readPage(ctx, id, page, limit)
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return transaction.Page{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, err := pgTransactions{q: tx}.readPage(ctx, id, page, limit)
	if err != nil {
		return transaction.Page{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return transaction.Page{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (r pgTransactions) readPage(ctx context.Context, id uuid.UUID, page, limit int) (transaction.Page, error) {
	var total int
	if err := r.q.QueryRow(ctx, pgCountTransactions, id).Scan(&total); err != nil {
		return transaction.Page{}, err
	}

	rows, err := r.q.Query(ctx, pgSelectTransactionPage, id, limit, transaction.Offset(page, limit))
	if err != nil {
		return transaction.Page{}, err
	}
	defer rows.Close()

	items := make([]transaction.Transaction, 0, min(limit, 64))
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return transaction.Page{}, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return transaction.Page{}, err
	}
	return transaction.NewPage(items, total, page, limit), nil
}

func (r pgTransactions) NetAmount(ctx context.Context, walletID string) (money.Amount, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return money.Zero, wallet.ErrNotFound
	}
	var net string
	if err := r.q.QueryRow(ctx, pgNetAmount, id).Scan(&net); err != nil {
		return money.Zero, err
	}
	return money.Parse(net)
}

func scanTransaction(row pgx.Row) (transaction.Transaction, error) {
	var (
		id, walletID uuid.UUID
		amount       string
		typ, status  string
		createdAt    time.Time
		t            transaction.Transaction
	)
	if err := row.Scan(&id, &walletID, &amount, &t.IdempotencyKey, &typ, &status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction.Transaction{}, transaction.ErrNotFound
		}
		return transaction.Transaction{}, err
	}
	parsed, err := money.Parse(amount)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("transaction %s amount: %w", id, err)
	}
	t.ID = id.String()
	t.WalletID = walletID.String()
	t.Amount = parsed
	t.Type = transaction.Type(typ)
	t.Status = transaction.Status(status)
	t.CreatedAt = createdAt.UTC()
	return t, nil
}
