package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/notification"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Service applies request-level rules on top of the ledger engine and
// notifies transfer recipients.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// MovementInput carries a fund or withdraw request in minor units.
type MovementInput struct {
	OwnerID        string
	Amount         int64
	IdempotencyKey string
}

// TransferInput carries a transfer request. Recipient is an email address or
// an owner id.
type TransferInput struct {
	SenderID       string
	Recipient      string
	Amount         int64
	IdempotencyKey string
}

// Fund credits the owner's wallet.
func (s *Service) Fund(ctx context.Context, in MovementInput) (wallet.Wallet, error) {
	return s.engine.Fund(ctx, in.OwnerID, money.FromMinor(in.Amount), in.IdempotencyKey)
}

// Withdraw debits the owner's wallet.
func (s *Service) Withdraw(ctx context.Context, in MovementInput) (wallet.Wallet, error) {
	return s.engine.Withdraw(ctx, in.OwnerID, money.FromMinor(in.Amount), in.IdempotencyKey)
}

// Transfer moves funds to the recipient and returns the sender's wallet.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (wallet.Wallet, error) {
	amount := money.FromMinor(in.Amount)
	if amount.Cmp(ledger.MinTransfer) < 0 {
		return wallet.Wallet{}, fmt.Errorf("%w: minimum transfer is %s", ledger.ErrInvalidArgument, ledger.MinTransfer)
	}
	w, err := s.engine.Transfer(ctx, in.SenderID, in.Recipient, amount, in.IdempotencyKey)
	if err != nil {
		return wallet.Wallet{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: in.Recipient,
		Body:        fmt.Sprintf("You received %s", amount),
	})
	return w, nil
}

// Balance returns the owner's wallet with its current balance.
func (s *Service) Balance(ctx context.Context, ownerID string) (wallet.Wallet, error) {
	return s.engine.Wallet(ctx, ownerID)
}

// History returns one page of the owner's records, newest first.
func (s *Service) History(ctx context.Context, ownerID string, page, limit int) (transaction.Page, error) {
	return s.engine.History(ctx, ownerID, page, limit)
}

// notify never fails the request: the transfer has already committed.
func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
