package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/store"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Directory resolves owners for the engine.
type Directory interface {
	OwnerExists(ctx context.Context, ownerID string) (bool, error)
	OwnerByEmail(ctx context.Context, email string) (string, error)
}

// Engine is the only writer of wallet balances and transaction records.
type Engine struct {
	store        store.Store
	directory    Directory
	logger       *slog.Logger
	metrics      *metrics.Ledger
	now          func() time.Time
	maxPageLimit int
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Ledger) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxPageLimit caps history page sizes.
func WithMaxPageLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPageLimit = n
		}
	}
}

// NewEngine builds an engine over st. A nil directory treats transfer
// recipients as owner ids without checking them.
func NewEngine(st store.Store, directory Directory, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		directory:    directory,
		logger:       logger,
		now:          time.Now,
		maxPageLimit: DefaultMaxPageLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fund credits the owner's wallet with a deposit of at least MinDeposit.
func (e *Engine) Fund(ctx context.Context, ownerID string, amount money.Amount, key string) (w wallet.Wallet, err error) {
	const op = "fund"
	defer e.observe(op, amount, time.Now(), &err)

	if err := ValidateKey(key); err != nil {
		return wallet.Wallet{}, err
	}
	if amount.Cmp(MinDeposit) < 0 {
		return wallet.Wallet{}, invalidf("deposit must be at least %s", MinDeposit)
	}
	return e.post(ctx, op, ownerID, amount, key, transaction.TypeDeposit)
}

// Withdraw debits the owner's wallet. The balance never goes below zero.
func (e *Engine) Withdraw(ctx context.Context, ownerID string, amount money.Amount, key string) (w wallet.Wallet, err error) {
	const op = "withdraw"
	defer e.observe(op, amount, time.Now(), &err)

	if err := ValidateKey(key); err != nil {
		return wallet.Wallet{}, err
	}
	if !amount.IsPositive() {
		return wallet.Wallet{}, invalidf("withdrawal must be positive")
	}
	return e.post(ctx, op, ownerID, amount, key, transaction.TypeWithdrawal)
}

// post applies a single-wallet movement.
func (e *Engine) post(ctx context.Context, op, ownerID string, amount money.Amount, key string, typ transaction.Type) (wallet.Wallet, error) {
	if err := e.checkReplay(ctx, key); err != nil {
		return wallet.Wallet{}, err
	}
	current, err := e.walletOf(ctx, ownerID)
	if err != nil {
		return wallet.Wallet{}, err
	}

	var updated wallet.Wallet
	err = e.store.WithinTx(ctx, func(tx store.Store) error {
		locked, err := lock(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		w := locked[current.ID]
		if !w.Active() {
			return inactive(w)
		}

		var next money.Amount
		if typ.Credits() {
			next, err = credit(w.Balance, amount)
		} else {
			next, err = debit(w.Balance, amount)
		}
		if err != nil {
			return err
		}

		now := e.now().UTC()
		w.Balance = next
		w.UpdatedAt = now
		if updated, err = tx.Wallets().Save(ctx, w); err != nil {
			return err
		}
		return tx.Transactions().Append(ctx, e.record(w.ID, amount, key, typ, now))
	})
	if err != nil {
		return wallet.Wallet{}, e.settle(ctx, op, key, err)
	}

	e.logger.Info("ledger operation committed",
		slog.String("operation", op),
		slog.String("wallet_id", updated.ID),
		slog.String("idempotency_key", key),
		slog.String("amount", amount.String()),
		slog.String("balance", updated.Balance.String()),
	)
	return updated, nil
}

// Transfer moves amount from the sender to the recipient, given as an email
// address or an owner id. Both legs commit together; the sender's updated
// wallet is returned.
func (e *Engine) Transfer(ctx context.Context, senderOwnerID, recipient string, amount money.Amount, key string) (w wallet.Wallet, err error) {
	const op = "transfer"
	defer e.observe(op, amount, time.Now(), &err)

	if err := ValidateKey(key); err != nil {
		return wallet.Wallet{}, err
	}
	if !amount.IsPositive() {
		return wallet.Wallet{}, invalidf("transfer must be positive")
	}
	if err := e.checkReplay(ctx, key); err != nil {
		return wallet.Wallet{}, err
	}

	sender, err := e.walletOf(ctx, senderOwnerID)
	if err != nil {
		return wallet.Wallet{}, err
	}
	recipientOwnerID, err := e.resolveRecipient(ctx, recipient)
	if err != nil {
		return wallet.Wallet{}, err
	}
	receiver, err := e.walletOf(ctx, recipientOwnerID)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if sender.ID == receiver.ID {
		return wallet.Wallet{}, invalidf("cannot transfer to self")
	}

	var updated wallet.Wallet
	err = e.store.WithinTx(ctx, func(tx store.Store) error {
		locked, err := lock(ctx, tx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}
		from, to := locked[sender.ID], locked[receiver.ID]
		if !from.Active() {
			return inactive(from)
		}
		if !to.Active() {
			return inactive(to)
		}

		fromBalance, err := debit(from.Balance, amount)
		if err != nil {
			return err
		}
		toBalance, err := credit(to.Balance, amount)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		from.Balance, from.UpdatedAt = fromBalance, now
		if updated, err = tx.Wallets().Save(ctx, from); err != nil {
			return err
		}
		if err := tx.Transactions().Append(ctx, e.record(from.ID, amount, key, transaction.TypeTransfer, now)); err != nil {
			return err
		}

		to.Balance, to.UpdatedAt = toBalance, now
		if _, err := tx.Wallets().Save(ctx, to); err != nil {
			return err
		}
		return tx.Transactions().Append(ctx, e.record(to.ID, amount, CreditKey(key), transaction.TypeReceived, now))
	})
	if err != nil {
		return wallet.Wallet{}, e.settle(ctx, op, key, err)
	}

	e.logger.Info("ledger operation committed",
		slog.String("operation", op),
		slog.String("wallet_id", sender.ID),
		slog.String("recipient_wallet_id", receiver.ID),
		slog.String("idempotency_key", key),
		slog.String("amount", amount.String()),
		slog.String("balance", updated.Balance.String()),
	)
	return updated, nil
}

// Balance returns the owner's current balance. Reads are allowed in any wallet status.
func (e *Engine) Balance(ctx context.Context, ownerID string) (money.Amount, error) {
	w, err := e.walletOf(ctx, ownerID)
	if err != nil {
		return money.Zero, err
	}
	return w.Balance, nil
}

// Wallet returns the owner's wallet.
func (e *Engine) Wallet(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	return e.walletOf(ctx, ownerID)
}

// History returns one page of the owner's transactions, newest first.
// Limits above the configured maximum are clamped.
func (e *Engine) History(ctx context.Context, ownerID string, page, limit int) (transaction.Page, error) {
	if limit > e.maxPageLimit {
		limit = e.maxPageLimit
	}
	if err := transaction.ValidatePage(page, limit); err != nil {
		return transaction.Page{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	w, err := e.walletOf(ctx, ownerID)
	if err != nil {
		return transaction.Page{}, err
	}
	p, err := e.store.Transactions().FindPage(ctx, w.ID, page, limit)
	if err != nil {
		return transaction.Page{}, fmt.Errorf("load history for wallet %s: %w", w.ID, err)
	}
	return p, nil
}

// Reconciliation compares a wallet balance with the sum of its records.
type Reconciliation struct {
	WalletID  string       `json:"wallet_id"`
	Balance   money.Amount `json:"balance"`
	LedgerNet money.Amount `json:"ledger_net"`
	Drift     money.Amount `json:"drift"`
}

// Balanced reports whether the balance is fully explained by the ledger.
func (r Reconciliation) Balanced() bool {
	return r.Drift.IsZero()
}

// Reconcile checks the owner's wallet against its ledger while holding the
// wallet lock, so no movement can land between the two reads.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (Reconciliation, error) {
	current, err := e.walletOf(ctx, ownerID)
	if err != nil {
		return Reconciliation{}, err
	}

	var rec Reconciliation
	err = e.store.WithinTx(ctx, func(tx store.Store) error {
		locked, err := lock(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		w := locked[current.ID]
		net, err := tx.Transactions().NetAmount(ctx, w.ID)
		if err != nil {
			return err
		}
		rec = Reconciliation{WalletID: w.ID, Balance: w.Balance, LedgerNet: net, Drift: w.Balance.Sub(net)}
		return nil
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile wallet %s: %w", current.ID, err)
	}

	if !rec.Balanced() {
		e.logger.Error("ledger drift detected",
			slog.String("wallet_id", rec.WalletID),
			slog.String("balance", rec.Balance.String()),
			slog.String("ledger_net", rec.LedgerNet.String()),
		)
	}
	return rec, nil
}

func (e *Engine) checkReplay(ctx context.Context, key string) error {
	prior, err := e.store.Transactions().FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return &AlreadyProcessedError{Transaction: prior}
	case errors.Is(err, transaction.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("look up idempotency key: %w", err)
	}
}

func (e *Engine) walletOf(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	w, err := e.store.Wallets().FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return wallet.Wallet{}, notFound("wallet for owner "+ownerID, err)
		}
		return wallet.Wallet{}, fmt.Errorf("load wallet for owner %s: %w", ownerID, err)
	}
	return w, nil
}

func (e *Engine) resolveRecipient(ctx context.Context, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", invalidf("recipient is required")
	}
	if e.directory == nil {
		return recipient, nil
	}

	if strings.Contains(recipient, "@") {
		ownerID, err := e.directory.OwnerByEmail(ctx, recipient)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return "", notFound("recipient "+recipient, err)
			}
			return "", fmt.Errorf("resolve recipient: %w", err)
		}
		return ownerID, nil
	}

	ok, err := e.directory.OwnerExists(ctx, recipient)
	if err != nil {
		return "", fmt.Errorf("resolve recipient: %w", err)
	}
	if !ok {
		return "", notFound("recipient "+recipient, identity.ErrNotFound)
	}
	return recipient, nil
}

// settle turns a failed unit of work into the error reported to the caller.
func (e *Engine) settle(ctx context.Context, op, key string, err error) error {
	if errors.Is(err, transaction.ErrDuplicateKey) {
		prior, lookupErr := e.store.Transactions().FindByIdempotencyKey(ctx, key)
		if lookupErr != nil {
			return fmt.Errorf("%w: %s: resolve duplicate key: %w", ErrCommitFailed, op, lookupErr)
		}
		e.logger.Warn("concurrent replay rejected by key constraint",
			slog.String("operation", op),
			slog.String("idempotency_key", key),
		)
		return &AlreadyProcessedError{Transaction: prior}
	}
	if rejection(err) {
		return err
	}

	e.logger.Error("ledger unit of work failed",
		slog.String("operation", op),
		slog.String("idempotency_key", key),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %s: %w", ErrCommitFailed, op, err)
}

func (e *Engine) record(walletID string, amount money.Amount, key string, typ transaction.Type, at time.Time) transaction.Transaction {
	return transaction.Transaction{
		ID:             uuid.NewString(),
		WalletID:       walletID,
		Amount:         amount,
		IdempotencyKey: key,
		Type:           typ,
		Status:         transaction.StatusCompleted,
		CreatedAt:      at,
	}
}

func (e *Engine) observe(op string, amount money.Amount, started time.Time, errp *error) {
	outcome := outcomeOf(*errp)
	e.metrics.Observe(op, outcome, started)
	if outcome == metrics.OutcomeCommitted {
		e.metrics.Moved(op, amount.Minor())
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.Is(err, ErrAlreadyProcessed):
		return metrics.OutcomeAlreadyProcessed
	case errors.Is(err, ErrInsufficientFunds):
		return metrics.OutcomeInsufficientFunds
	case errors.Is(err, ErrCommitFailed):
		return metrics.OutcomeCommitFailed
	default:
		return metrics.OutcomeRejected
	}
}

func lock(ctx context.Context, tx store.Store, ids ...string) (map[string]wallet.Wallet, error) {
	locked, err := tx.Wallets().Lock(ctx, ids...)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, notFound("wallet", err)
		}
		return nil, err
	}
	return locked, nil
}

func inactive(w wallet.Wallet) error {
	return fmt.Errorf("%w: wallet %s is %s", ErrWalletInactive, w.ID, w.Status)
}

func credit(balance, amount money.Amount) (money.Amount, error) {
	next := balance.Add(amount)
	if next.Cmp(money.MaxBalance) > 0 {
		return money.Zero, invalidf("balance would exceed %s", money.MaxBalance)
	}
	return next, nil
}

func debit(balance, amount money.Amount) (money.Amount, error) {
	next := balance.Sub(amount)
	if next.IsNegative() {
		return money.Zero, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, balance, amount)
	}
	return next, nil
}
