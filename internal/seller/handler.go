package seller

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/auth"
)

type Handler struct {
	service  *Service
	secret   string
	tokenTTL time.Duration
	log      *slog.Logger
}

func NewHandler(service *Service, secret string, tokenTTL time.Duration, log *slog.Logger) *Handler {
	return &Handler{service: service, secret: secret, tokenTTL: tokenTTL, log: log}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/api/v1/seller/sign-in", h.login)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/seller/bank-details", h.getBankDetails)
	app.Post("/api/v1/seller/bank-details", h.saveBankDetails)
	app.Get("/api/v1/seller/bank-details/branch/:ifsc", h.getBranch)
	app.Post("/api/v1/seller/:sellerId<int>/rating", h.rate)
}

type ratingRequest struct {
	Rating float64 `json:"rating"`
}

func (h *Handler) login(c *fiber.Ctx) error {
	payload := new(loginRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	sl, err := h.service.Authenticate(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid email or password"})
	}
	signed, err := auth.IssueToken(h.secret, sl.ID, sl.Email, auth.RoleSeller, h.tokenTTL)
	if err != nil {
		h.log.Error("seller: sign token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to generate token"})
	}
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"seller":  sanitize(sl),
		"token":   signed,
	})
}

func (h *Handler) getBankDetails(c *fiber.Ctx) error {
	sellerID, err := auth.SellerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	b, err := h.service.BankDetails(c.UserContext(), sellerID)
	if err != nil {
		if errors.Is(err, ErrBankDetailsNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "bank details not found"})
		}
		h.log.Error("seller: load bank details", "seller_id", sellerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not load bank details"})
	}
	return c.JSON(b)
}

func (h *Handler) saveBankDetails(c *fiber.Ctx) error {
	sellerID, err := auth.SellerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(BankDetails)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	payload.SellerID = sellerID

	saved, err := h.service.SaveBankDetails(c.UserContext(), *payload)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingAccount), errors.Is(err, ErrInvalidIFSC):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "seller not found"})
		default:
			h.log.Error("seller: save bank details", "seller_id", sellerID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not save bank details"})
		}
	}
	return c.JSON(saved)
}

// getBranch answers with a null branch when the code cannot be resolved.
func (h *Handler) getBranch(c *fiber.Ctx) error {
	if _, err := auth.SellerID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	branch, err := h.service.Branch(c.UserContext(), c.Params("ifsc"))
	if err != nil {
		h.log.Info("seller: ifsc lookup failed", "ifsc", c.Params("ifsc"), "error", err)
		return c.JSON(fiber.Map{"branch": nil})
	}
	return c.JSON(fiber.Map{"branch": branch})
}

// rate lets a customer rate a seller.
func (h *Handler) rate(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	sellerID, err := c.ParamsInt("sellerId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid seller id"})
	}
	payload := new(ratingRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}

	r, err := h.service.Rate(c.UserContext(), sellerID, payload.Rating)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "seller not found"})
		default:
			h.log.Error("seller: add rating", "seller_id", sellerID, "customer_id", customerID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not save rating"})
		}
	}
	return c.JSON(r)
}
