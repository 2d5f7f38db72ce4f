package order

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/auth"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(s *Service, log *slog.Logger) *Handler {
	return &Handler{service: s, log: log}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/orders", h.getOrders)
}

// getOrders returns all orders belonging to the authenticated customer.
func (h *Handler) getOrders(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	orders, err := h.service.History(c.UserContext(), customerID)
	if err != nil {
		h.log.Error("order: list history", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load orders"})
	}
	return c.JSON(orders)
}
