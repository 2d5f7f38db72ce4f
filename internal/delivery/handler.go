package delivery

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/geo"
)

type Handler struct {
	engine *Engine
	router Router
	log    *slog.Logger
}

func NewHandler(engine *Engine, router Router, log *slog.Logger) *Handler {
	return &Handler{engine: engine, router: router, log: log}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/api/v1/delivery/calculate", h.calculate)
	app.Get("/api/v1/geocode", h.geocode)
}

type calculateRequest struct {
	SellerAddresses []string `json:"sellerAddresses"`
	DeliveryAddress string   `json:"deliveryAddress"`
}

func (h *Handler) calculate(c *fiber.Ctx) error {
	payload := new(calculateRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	if len(payload.SellerAddresses) == 0 || strings.TrimSpace(payload.DeliveryAddress) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "seller and delivery addresses are required"})
	}

	// anonymous stops: every address is priced, duplicates included
	stops := make([]SellerStop, 0, len(payload.SellerAddresses))
	for _, a := range payload.SellerAddresses {
		stops = append(stops, SellerStop{Address: a})
	}
	b, err := h.engine.QuoteSellers(c.UserContext(), stops, payload.DeliveryAddress)
	if err != nil {
		if errors.Is(err, geo.ErrNoMatch) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "address could not be located"})
		}
		h.log.Warn("delivery: calculate failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "error calculating distance"})
	}
	return c.JSON(fiber.Map{"totalDeliveryCharge": b.Total, "quotes": b.Quotes})
}

func (h *Handler) geocode(c *fiber.Ctx) error {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "address is required"})
	}
	p, err := h.router.Geocode(c.UserContext(), address)
	if err != nil {
		if errors.Is(err, geo.ErrNoMatch) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no geocoding results found"})
		}
		h.log.Warn("delivery: geocode failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "error geocoding address"})
	}
	return c.JSON(p)
}
