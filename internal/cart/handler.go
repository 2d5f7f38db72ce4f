package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/auth"
)

// ErrCheckoutPending is returned when the cart is frozen behind a payment
// intent the customer has not completed or cancelled.
var ErrCheckoutPending = errors.New("checkout in progress")

// MealLookup resolves a meal id into a cart line from the catalog.
type MealLookup interface {
	LineFor(ctx context.Context, mealID int) (Line, error)
}

// SessionStore is the slice of the session package the handler needs.
// Declared here to avoid an import cycle (session stores cart lines).
type SessionStore interface {
	Open(c *fiber.Ctx, customerID int) (SessionHandle, error)
}

type SessionHandle interface {
	Lines() []Line
	SetLines(lines []Line)
	Pending() bool
	Save() error
}

// Locker serializes state changes per customer.
type Locker interface {
	Lock(customerID int) func()
}

// Handler exposes the cart held in the customer's session.
type Handler struct {
	sessions SessionStore
	meals    MealLookup
	locker   Locker
	log      *slog.Logger
}

func NewHandler(sessions SessionStore, meals MealLookup, locker Locker, log *slog.Logger) *Handler {
	return &Handler{sessions: sessions, meals: meals, locker: locker, log: log}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/cart", h.getCart)
	app.Post("/api/v1/cart", h.addFromBody)
	app.Post("/api/v1/cart/:mealId<int>", h.addFromPath)
	app.Delete("/api/v1/cart/:mealId<int>", h.removeLine)
	app.Delete("/api/v1/cart", h.clearCart)
}

type cartResponse struct {
	Items    []Line          `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func respond(c *fiber.Ctx, lines []Line) error {
	return c.JSON(cartResponse{Items: lines, Count: Count(lines), Subtotal: Subtotal(lines)})
}

type addRequest struct {
	MealID int `json:"mealId" form:"mealId"`
}

func (h *Handler) getCart(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	sess, err := h.sessions.Open(c, customerID)
	if err != nil {
		h.log.Error("cart: load session", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load cart"})
	}
	return respond(c, sess.Lines())
}

func (h *Handler) addFromBody(c *fiber.Ctx) error {
	payload := new(addRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.add(c, payload.MealID)
}

func (h *Handler) addFromPath(c *fiber.Ctx) error {
	mealID, err := c.ParamsInt("mealId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid mealId"})
	}
	return h.add(c, mealID)
}

func (h *Handler) add(c *fiber.Ctx, mealID int) error {
	if mealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrMissingMealID.Error()})
	}
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	line, err := h.meals.LineFor(c.UserContext(), mealID)
	if err != nil {
		h.log.Info("cart: meal lookup failed", "meal_id", mealID, "error", err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "meal not found"})
	}

	return h.mutate(c, customerID, func(lines []Line) ([]Line, error) {
		out, _, err := Add(lines, line)
		return out, err
	}, func(lines []Line) error { return respond(c, lines) })
}

func (h *Handler) removeLine(c *fiber.Ctx) error {
	mealID, err := c.ParamsInt("mealId")
	if err != nil || mealID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid mealId"})
	}
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	return h.mutate(c, customerID, func(lines []Line) ([]Line, error) {
		return Remove(lines, mealID), nil
	}, func(lines []Line) error { return respond(c, lines) })
}

func (h *Handler) clearCart(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	return h.mutate(c, customerID, func([]Line) ([]Line, error) {
		return Clear(), nil
	}, func([]Line) error { return c.SendStatus(fiber.StatusNoContent) })
}

func (h *Handler) mutate(c *fiber.Ctx, customerID int, fn func([]Line) ([]Line, error), reply func([]Line) error) error {
	unlock := h.locker.Lock(customerID)
	defer unlock()

	sess, err := h.sessions.Open(c, customerID)
	if err != nil {
		h.log.Error("cart: load session", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load cart"})
	}
	if sess.Pending() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": ErrCheckoutPending.Error()})
	}

	lines, err := fn(sess.Lines())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	sess.SetLines(lines)
	if err := sess.Save(); err != nil {
		h.log.Error("cart: save session", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not save cart"})
	}
	return reply(lines)
}
