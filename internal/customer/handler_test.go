package customer

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/logging"
)

const testSecret = "test-secret"

// the header middleware stands in for jwtware so tests stay lightweight
func makeAppWithCustomerHandler(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterPublicRoutes(app)
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-Customer-ID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				auth.PlantToken(c, id, auth.RoleCustomer)
			}
		}
		return c.Next()
	})
	h.RegisterProtectedRoutes(app)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	b, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(b)
}

func TestSignUpWithReferralAndSignIn(t *testing.T) {
	repo := NewInMemoryRepository([]Customer{{ID: 3, Name: "Asha", Email: "asha@example.com"}})
	app := makeAppWithCustomerHandler(NewHandler(NewService(repo), testSecret, time.Hour, "https://homemeal.example", logging.Discard()))

	status, body := postJSON(t, app, "/api/v1/customer/sign-up",
		`{"name":"Ravi","address":"12 MG Road","email":"ravi@example.com","password":"pw","confirmPassword":"pw","referral":"3"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	if strings.Contains(body, `"password"`) {
		t.Fatalf("response must not expose password: %s", body)
	}
	var created Customer
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.IsReferral || created.ReferrerID == nil || *created.ReferrerID != 3 {
		t.Fatalf("expected referral to customer 3, got %+v", created)
	}

	status, _ = postJSON(t, app, "/api/v1/customer/sign-up",
		`{"name":"Ravi","email":"ravi@example.com","password":"pw"}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 on duplicate email, got %d", status)
	}

	status, body = postJSON(t, app, "/api/v1/customer/sign-in", `{"email":"ravi@example.com","password":"pw"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 on sign-in, got %d: %s", status, body)
	}
	var login struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal([]byte(body), &login)
	tok, err := jwt.Parse(login.Token, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	if err != nil || !tok.Valid {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims := tok.Claims.(jwt.MapClaims); claims["role"] != auth.RoleCustomer {
		t.Fatalf("expected customer role, got %v", claims["role"])
	}

	status, _ = postJSON(t, app, "/api/v1/customer/sign-in", `{"email":"ravi@example.com","password":"wrong"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 on bad password, got %d", status)
	}
}

func TestSignUp_UnknownReferrerIsDropped(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	app := makeAppWithCustomerHandler(NewHandler(NewService(repo), testSecret, time.Hour, "", logging.Discard()))

	status, body := postJSON(t, app, "/api/v1/customer/sign-up?ref=99",
		`{"name":"Ravi","email":"ravi@example.com","password":"pw"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	if strings.Contains(body, "referrerId") {
		t.Fatalf("unknown referrer must not be stored: %s", body)
	}

	status, _ = postJSON(t, app, "/api/v1/customer/sign-up", `{"name":"x","email":"x@example.com","password":"a","confirmPassword":"b"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 on password mismatch, got %d", status)
	}
	status, _ = postJSON(t, app, "/api/v1/customer/sign-up", `{"email":"y@example.com"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 on missing fields, got %d", status)
	}
}

func TestReferLinkAndProfile(t *testing.T) {
	repo := NewInMemoryRepository([]Customer{{ID: 42, Name: "Ravi", Email: "r@example.com", Password: "$2a$hash"}})
	app := makeAppWithCustomerHandler(NewHandler(NewService(repo), testSecret, time.Hour, "https://homemeal.example", logging.Discard()))

	res, _ := app.Test(httptest.NewRequest("GET", "/api/v1/customer/refer", nil))
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	req := httptest.NewRequest("GET", "/api/v1/customer/refer", nil)
	req.Header.Set("X-Customer-ID", "42")
	res, _ = app.Test(req)
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), "https://homemeal.example/register/customer?ref=42") {
		t.Fatalf("unexpected referral link body %s", string(b))
	}

	req = httptest.NewRequest("GET", "/api/v1/customer/profile", nil)
	req.Header.Set("X-Customer-ID", "42")
	res, _ = app.Test(req)
	b, _ = io.ReadAll(res.Body)
	if res.StatusCode != fiber.StatusOK || strings.Contains(string(b), "$2a$hash") {
		t.Fatalf("unexpected profile response %d %s", res.StatusCode, string(b))
	}
}
