package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/payments"
)

// RegisterPaymentRoutes wires the money-moving endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Patch("/wallet/fund", h.Fund)
	r.Patch("/wallet/withdraw", h.Withdraw)
	r.Post("/wallet/transfer", h.Transfer)
}
