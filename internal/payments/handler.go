package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/wallet"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes the wallet endpoints of the authenticated owner.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type movementRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferRequest struct {
	RecipientEmail string `json:"recipient_email"`
	RecipientID    string `json:"recipient_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Balance returns the caller's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	w, err := h.service.Balance(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, "balance", err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": w.ID,
		"balance":   w.Balance,
		"status":    w.Status,
	})
}

// History returns a page of the caller's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	res, err := h.service.History(c.UserContext(), middleware.UserID(c), page, limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Fund credits the caller's wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	w, err := h.service.Fund(c.UserContext(), MovementInput{
		OwnerID:        middleware.UserID(c),
		Amount:         req.Amount,
		IdempotencyKey: keyOf(c, req.IdempotencyKey),
	})
	if err != nil {
		return h.fail(c, "fund", err)
	}
	return completed(c, w)
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	w, err := h.service.Withdraw(c.UserContext(), MovementInput{
		OwnerID:        middleware.UserID(c),
		Amount:         req.Amount,
		IdempotencyKey: keyOf(c, req.IdempotencyKey),
	})
	if err != nil {
		return h.fail(c, "withdraw", err)
	}
	return completed(c, w)
}

// Transfer moves funds from the caller to another owner.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	recipient := strings.TrimSpace(req.RecipientEmail)
	if recipient == "" {
		recipient = strings.TrimSpace(req.RecipientID)
	}
	if recipient == "" {
		return fiber.NewError(http.StatusBadRequest, "recipient_email is required")
	}
	w, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:       middleware.UserID(c),
		Recipient:      recipient,
		Amount:         req.Amount,
		IdempotencyKey: keyOf(c, req.IdempotencyKey),
	})
	if err != nil {
		return h.fail(c, "transfer", err)
	}
	return completed(c, w)
}

func keyOf(c *fiber.Ctx, body string) string {
	if key := strings.TrimSpace(body); key != "" {
		return key
	}
	return strings.TrimSpace(c.Get(idempotencyKeyHeader))
}

func completed(c *fiber.Ctx, w wallet.Wallet) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "completed",
		"wallet": w,
	})
}

// fail maps ledger errors onto HTTP responses. A replayed key is not an
// error for the client: it gets the prior outcome with a 200.
func (h *Handler) fail(c *fiber.Ctx, op string, err error) error {
	var replay *ledger.AlreadyProcessedError
	switch {
	case errors.As(err, &replay):
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":             "already_processed",
			"transaction_status": replay.Status(),
		})
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrWalletInactive):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrCommitFailed):
		return fiber.NewError(http.StatusServiceUnavailable, "transaction could not be committed, retry with the same idempotency key")
	default:
		h.logger.Error("payments request failed", slog.String("op", op), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
