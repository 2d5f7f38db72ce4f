package monthly

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/outbound"
	"github.com/wichananm65/homemeal-backend/internal/order"
	"github.com/wichananm65/homemeal-backend/internal/payment"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

type SessionStore interface {
	Load(c *fiber.Ctx, customerID int) (*session.Handle, error)
}

type Locker interface {
	Lock(customerID int) func()
}

type Handler struct {
	service  *Service
	sessions SessionStore
	locker   Locker
	keyID    string
	log      *slog.Logger
}

func NewHandler(service *Service, sessions SessionStore, locker Locker, keyID string, log *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, locker: locker, keyID: keyID, log: log}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Get("/api/v1/monthly/:sellerId<int>", h.getMenu)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/monthly/orders", h.start)
	app.Delete("/api/v1/monthly/orders", h.cancel)
	app.Post("/api/v1/monthly/confirm", h.confirm)
	app.Get("/api/v1/customer/mess", h.getMess)
}

type intentResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"keyId"`
}

func (h *Handler) getMenu(c *fiber.Ctx) error {
	sellerID, err := c.ParamsInt("sellerId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid seller id"})
	}
	m, err := h.service.Menu(c.UserContext(), sellerID)
	if err != nil {
		if errors.Is(err, ErrSellerNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "seller not found"})
		}
		h.log.Error("monthly: load menu", "seller_id", sellerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load monthly meals"})
	}
	return c.JSON(m)
}

// withSession runs fn under the customer's lock and saves the session after.
func (h *Handler) withSession(c *fiber.Ctx, fn func(cs *session.CheckoutSession) error) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	unlock := h.locker.Lock(customerID)
	defer unlock()

	sess, err := h.sessions.Load(c, customerID)
	if err != nil {
		h.log.Error("monthly: load session", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load session"})
	}
	opErr := fn(sess.Data)
	if err := sess.Save(); err != nil {
		h.log.Error("monthly: save session", "customer_id", customerID, "error", err)
		if opErr == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not save session"})
		}
	}
	if opErr != nil {
		return h.fail(c, customerID, opErr)
	}
	return nil
}

func (h *Handler) fail(c *fiber.Ctx, customerID int, err error) error {
	var (
		verr *ValidationError
		perr *payment.GatewayError
		serr *order.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": verr.Reason})
	case errors.Is(err, ErrPlanPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	case errors.As(err, &perr), errors.Is(err, outbound.ErrUnavailable):
		h.log.Warn("monthly: payment gateway failed", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "payment service unavailable"})
	case errors.As(err, &serr):
		h.log.Error("monthly: persisting plan failed", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not record plan"})
	default:
		h.log.Error("monthly: unexpected failure", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "monthly plan failed"})
	}
}

func (h *Handler) start(c *fiber.Ctx) error {
	if _, err := auth.CustomerID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(StartRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		d, err := h.service.Start(c.UserContext(), cs, *payload)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"intent":   intentResponse{OrderID: d.IntentID, Amount: d.AmountMinor, Currency: d.Currency, Receipt: d.Receipt, KeyID: h.keyID},
			"mealName": d.MealName,
			"mealPlan": d.MealPlan,
			"days":     PlanDays,
			"total":    d.Total,
		})
	})
}

func (h *Handler) cancel(c *fiber.Ctx) error {
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		h.service.Cancel(cs)
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func (h *Handler) confirm(c *fiber.Ctx) error {
	if _, err := auth.CustomerID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(Callback)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		res, err := h.service.Confirm(c.UserContext(), cs, *payload)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})
}

// getMess lists the customer's monthly plans.
func (h *Handler) getMess(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	subs, err := h.service.History(c.UserContext(), customerID)
	if err != nil {
		h.log.Error("monthly: list plans", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load monthly plans"})
	}
	return c.JSON(subs)
}
