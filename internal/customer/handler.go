package customer

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/referral"
)

type Handler struct {
	service  *Service
	secret   string
	tokenTTL time.Duration
	baseURL  string
	log      *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Referral        string `json:"referral"`
}

func NewHandler(service *Service, secret string, tokenTTL time.Duration, baseURL string, log *slog.Logger) *Handler {
	return &Handler{service: service, secret: secret, tokenTTL: tokenTTL, baseURL: baseURL, log: log}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/api/v1/customer/sign-up", h.register)
	app.Post("/api/v1/customer/sign-in", h.login)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/customer/profile", h.getProfile)
	app.Get("/api/v1/customer/refer", h.getReferLink)
}

func (h *Handler) register(c *fiber.Ctx) error {
	payload := new(registerRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	if payload.ConfirmPassword != "" && payload.ConfirmPassword != payload.Password {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "passwords do not match"})
	}

	// the referral may come from the sign-up link (?ref=) or the form
	ref := payload.Referral
	if ref == "" {
		ref = c.Query("ref")
	}
	referrerID, _ := strconv.Atoi(ref)

	created, err := h.service.Register(c.UserContext(), Customer{
		Name:     payload.Name,
		Address:  payload.Address,
		Email:    payload.Email,
		Password: payload.Password,
	}, referrerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFields):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "missing required fields"})
		case errors.Is(err, ErrEmailExists):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "email already exists"})
		default:
			h.log.Error("customer: register", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "registration failed"})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(sanitize(created))
}

func (h *Handler) login(c *fiber.Ctx) error {
	payload := new(loginRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}

	cust, err := h.service.Authenticate(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid email or password"})
	}

	signed, err := auth.IssueToken(h.secret, cust.ID, cust.Email, auth.RoleCustomer, h.tokenTTL)
	if err != nil {
		h.log.Error("customer: sign token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to generate token"})
	}

	return c.JSON(fiber.Map{
		"message":  "Login successful",
		"customer": sanitize(cust),
		"token":    signed,
	})
}

func (h *Handler) getProfile(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	cust, err := h.service.GetByID(c.UserContext(), customerID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "customer not found"})
	}
	return c.JSON(sanitize(cust))
}

func (h *Handler) getReferLink(c *fiber.Ctx) error {
	customerID, err := auth.CustomerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	return c.JSON(fiber.Map{"referralLink": referral.Link(h.baseURL, customerID)})
}
