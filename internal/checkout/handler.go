package checkout

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/delivery"
	"github.com/wichananm65/homemeal-backend/internal/geo"
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

// NewHandler wires the checkout routes. keyID is the public gateway key the
// payment page needs to open the intent.
func NewHandler(service *Service, sessions SessionStore, locker Locker, keyID string, log *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, locker: locker, keyID: keyID, log: log}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/checkout", h.getState)
	app.Post("/api/v1/checkout/delivery-address", h.saveAddress)
	app.Post("/api/v1/checkout/quote", h.quote)
	app.Post("/api/v1/checkout/orders", h.createOrder)
	app.Delete("/api/v1/checkout/orders", h.cancelOrder)
	app.Post("/api/v1/checkout/confirm", h.confirm)
}

type addressRequest struct {
	DeliveryAddress string `json:"deliveryAddress" form:"deliveryAddress"`
}

type intentResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"keyId"`
}

type stateResponse struct {
	State           session.State   `json:"state"`
	DeliveryAddress string          `json:"deliveryAddress,omitempty"`
	Pending         *intentResponse `json:"pending,omitempty"`
	LastError       string          `json:"lastError,omitempty"`
}

// withSession runs fn under the customer's lock and saves the session
// afterwards, also when fn fails, so Failed states are kept.
func (h *Handler) withSession(c *fiber.Ctx, fn func(cs *session.CheckoutSession) error) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	unlock := h.locker.Lock(customerID)
	defer unlock()

	sess, err := h.sessions.Load(c, customerID)
	if err != nil {
		h.log.Error("checkout: load session", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load checkout"})
	}

	opErr := fn(sess.Data)
	if err := sess.Save(); err != nil {
		h.log.Error("checkout: save session", "customer_id", customerID, "error", err)
		if opErr == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not save checkout"})
		}
	}
	if opErr != nil {
		return h.fail(c, customerID, opErr)
	}
	return nil
}

// fail maps an operation error to a status. Upstream details stay in the log.
func (h *Handler) fail(c *fiber.Ctx, customerID int, err error) error {
	var (
		verr *ValidationError
		gerr *geo.GeocodeError
		rerr *geo.RoutingError
		perr *payment.GatewayError
		serr *order.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": verr.Reason})
	case errors.Is(err, ErrPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, delivery.ErrNoSellers):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "cart is empty"})
	case errors.As(err, &gerr) && errors.Is(err, geo.ErrNoMatch):
		h.log.Info("checkout: address not located", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "address could not be located"})
	case errors.As(err, &gerr), errors.As(err, &rerr):
		h.log.Warn("checkout: delivery pricing failed", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "error calculating delivery"})
	case errors.As(err, &perr), errors.Is(err, outbound.ErrUnavailable):
		h.log.Warn("checkout: payment gateway failed", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "payment service unavailable"})
	case errors.As(err, &serr):
		h.log.Error("checkout: persisting orders failed", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not record orders"})
	default:
		h.log.Error("checkout: unexpected failure", "customer_id", customerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "checkout failed"})
	}
}

func (h *Handler) intent(d *session.Draft) *intentResponse {
	if d == nil {
		return nil
	}
	return &intentResponse{OrderID: d.IntentID, Amount: d.AmountMinor, Currency: d.Currency, Receipt: d.Receipt, KeyID: h.keyID}
}

func (h *Handler) getState(c *fiber.Ctx) error {
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		res := stateResponse{State: cs.State, DeliveryAddress: cs.DeliveryAddress, LastError: cs.LastError}
		if cs.Pending() {
			res.Pending = h.intent(cs.Draft)
		}
		return c.JSON(res)
	})
}

func (h *Handler) saveAddress(c *fiber.Ctx) error {
	if _, err := auth.CustomerID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(addressRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		if err := h.service.SaveDeliveryAddress(cs, payload.DeliveryAddress); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"deliveryAddress": cs.DeliveryAddress})
	})
}

// optionalAddress reads a delivery address from the body when one is sent.
func optionalAddress(c *fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return "", nil
	}
	payload := new(addressRequest)
	if err := c.BodyParser(payload); err != nil {
		return "", err
	}
	return payload.DeliveryAddress, nil
}

func (h *Handler) quote(c *fiber.Ctx) error {
	address, err := optionalAddress(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		q, err := h.service.Quote(c.UserContext(), cs, address)
		if err != nil {
			return err
		}
		return c.JSON(q)
	})
}

func (h *Handler) createOrder(c *fiber.Ctx) error {
	address, err := optionalAddress(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	return h.withSession(c, func(cs *session.CheckoutSession) error {
		d, err := h.service.CreateIntent(c.UserContext(), cs, address)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"intent":        h.intent(&d),
			"subtotal":      d.Subtotal,
			"deliveryTotal": d.DeliveryTotal,
			"total":         d.Total,
		})
	})
}

func (h *Handler) cancelOrder(c *fiber.Ctx) error {
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
