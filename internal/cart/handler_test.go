package cart_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/cart"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/logging"
	"github.com/wichananm65/homemeal-backend/internal/meal"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

func makeAppWithCartHandler(h *cart.Handler) *fiber.App {
	app := fiber.New()
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

func seededMeals() *meal.Service {
	return meal.NewService(meal.NewInMemoryRepository([]meal.Meal{
		{ID: 1, SellerID: 7, SellerName: "Asha", Name: "Thali", Price: decimal.NewFromInt(120), IsEnabled: true},
		{ID: 2, SellerID: 8, SellerName: "Ravi", Name: "Dosa", Price: decimal.NewFromInt(80), IsEnabled: true},
		{ID: 3, SellerID: 8, SellerName: "Ravi", Name: "Idli", Price: decimal.NewFromInt(40), IsEnabled: false},
	}))
}

type cartBody struct {
	Items    []cart.Line     `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func readCart(t *testing.T, res *http.Response) cartBody {
	t.Helper()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var out cartBody
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

// client replays the session cookie the way a browser would.
type client struct {
	t      *testing.T
	app    *fiber.App
	cookie *http.Cookie
}

func (cl *client) do(method, path, body string) *http.Response {
	cl.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Customer-ID", "42")
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	res, err := cl.app.Test(req)
	require.NoError(cl.t, err)
	for _, ck := range res.Cookies() {
		if ck.Name == session.CookieName {
			cl.cookie = ck
		}
	}
	return res
}

func newClient(t *testing.T) *client {
	store := session.NewStore(session.Config{Expiration: time.Hour})
	h := cart.NewHandler(store, seededMeals(), session.NewLocker(), logging.Discard())
	return &client{t: t, app: makeAppWithCartHandler(h)}
}

func TestCartRoutes_Unauthorized(t *testing.T) {
	store := session.NewStore(session.Config{})
	app := makeAppWithCartHandler(cart.NewHandler(store, seededMeals(), session.NewLocker(), logging.Discard()))

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/cart"},
		{"POST", "/api/v1/cart/1"},
		{"DELETE", "/api/v1/cart/1"},
		{"DELETE", "/api/v1/cart"},
	} {
		res, err := app.Test(httptest.NewRequest(tc.method, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestCartRoutes_AddDedupRemoveClear(t *testing.T) {
	cl := newClient(t)

	res := cl.do("POST", "/api/v1/cart/1", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	// same meal again via the body path must not duplicate
	res = cl.do("POST", "/api/v1/cart", `{"mealId":1}`)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	body := readCart(t, res)
	assert.Equal(t, 1, body.Count)

	res = cl.do("POST", "/api/v1/cart", `{"mealId":2}`)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	body = readCart(t, res)
	assert.Equal(t, 2, body.Count)
	assert.True(t, body.Subtotal.Equal(decimal.NewFromInt(200)), "subtotal %s", body.Subtotal)
	assert.Equal(t, 7, body.Items[0].SellerID)

	res = cl.do("DELETE", "/api/v1/cart/1", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	body = readCart(t, res)
	require.Len(t, body.Items, 1)
	assert.Equal(t, 2, body.Items[0].MealID)

	res = cl.do("DELETE", "/api/v1/cart", "")
	assert.Equal(t, fiber.StatusNoContent, res.StatusCode)

	res = cl.do("GET", "/api/v1/cart", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Equal(t, 0, readCart(t, res).Count)
}

func TestCartRoutes_RejectsUnknownOrDisabledMeal(t *testing.T) {
	cl := newClient(t)

	assert.Equal(t, fiber.StatusNotFound, cl.do("POST", "/api/v1/cart/99", "").StatusCode)
	assert.Equal(t, fiber.StatusNotFound, cl.do("POST", "/api/v1/cart/3", "").StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, cl.do("POST", "/api/v1/cart", `{"mealId":0}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, cl.do("POST", "/api/v1/cart", `not-json`).StatusCode)
}

type pendingStore struct{ h *pendingHandle }

func (s pendingStore) Open(*fiber.Ctx, int) (cart.SessionHandle, error) { return s.h, nil }

type pendingHandle struct {
	lines []cart.Line
	saved int
}

func (h *pendingHandle) Lines() []cart.Line         { return h.lines }
func (h *pendingHandle) SetLines(lines []cart.Line) { h.lines = lines }
func (h *pendingHandle) Pending() bool              { return true }
func (h *pendingHandle) Save() error                { h.saved++; return nil }

func TestCartRoutes_FrozenWhilePaymentPending(t *testing.T) {
	h := &pendingHandle{lines: []cart.Line{{MealID: 1, Price: decimal.NewFromInt(120)}}}
	app := makeAppWithCartHandler(cart.NewHandler(pendingStore{h}, seededMeals(), session.NewLocker(), logging.Discard()))

	req := httptest.NewRequest("POST", "/api/v1/cart/2", nil)
	req.Header.Set("X-Customer-ID", "42")
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, res.StatusCode)

	req = httptest.NewRequest("DELETE", "/api/v1/cart", nil)
	req.Header.Set("X-Customer-ID", "42")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, res.StatusCode)

	assert.Len(t, h.lines, 1)
	assert.Zero(t, h.saved)

	req = httptest.NewRequest("GET", "/api/v1/cart", nil)
	req.Header.Set("X-Customer-ID", "42")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}
