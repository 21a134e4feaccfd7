package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/payments"
)

// RegisterWalletRoutes wires the read-only wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *payments.Handler) {
	r.Get("/wallet/balance", h.Balance)
	r.Get("/wallet/transactions", h.History)
}
