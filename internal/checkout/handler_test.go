package checkout

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
	"github.com/wichananm65/homemeal-backend/internal/payment"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

func makeCheckoutApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	f := newFixture(t)
	store := session.NewStore(session.Config{Expiration: time.Hour})
	locker := session.NewLocker()
	meals := meal.NewService(meal.NewInMemoryRepository([]meal.Meal{
		{ID: 1, SellerID: 7, Name: "Thali", Price: decimal.NewFromInt(120), IsEnabled: true},
		{ID: 2, SellerID: 8, Name: "Dosa", Price: decimal.NewFromInt(80), IsEnabled: true},
	}))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-Customer-ID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				auth.PlantToken(c, id, auth.RoleCustomer)
			}
		}
		return c.Next()
	})
	cart.NewHandler(store, meals, locker, logging.Discard()).RegisterProtectedRoutes(app)
	NewHandler(f.svc, store, locker, "rzp_test_key", logging.Discard()).RegisterProtectedRoutes(app)
	return app, f
}

type browser struct {
	t      *testing.T
	app    *fiber.App
	cookie *http.Cookie
}

func (b *browser) do(method, path, body string) (*http.Response, map[string]any) {
	b.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Customer-ID", "42")
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	res, err := b.app.Test(req)
	require.NoError(b.t, err)
	for _, ck := range res.Cookies() {
		if ck.Name == session.CookieName {
			b.cookie = ck
		}
	}
	raw, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return res, out
}

func TestCheckoutRoutes_Unauthorized(t *testing.T) {
	app, _ := makeCheckoutApp(t)
	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/checkout"},
		{"POST", "/api/v1/checkout/quote"},
		{"POST", "/api/v1/checkout/orders"},
		{"DELETE", "/api/v1/checkout/orders"},
		{"POST", "/api/v1/checkout/confirm"},
	} {
		res, err := app.Test(httptest.NewRequest(tc.method, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestCheckoutRoutes_FullFlow(t *testing.T) {
	app, f := makeCheckoutApp(t)
	b := &browser{t: t, app: app}

	res, _ := b.do("POST", "/api/v1/cart/1", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	res, _ = b.do("POST", "/api/v1/cart/2", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	res, body := b.do("POST", "/api/v1/checkout/quote", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Equal(t, "400", body["total"])

	res, body = b.do("POST", "/api/v1/checkout/orders", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	intent := body["intent"].(map[string]any)
	assert.Equal(t, float64(40000), intent["amount"])
	assert.Equal(t, "rzp_test_key", intent["keyId"])
	orderID := intent["orderId"].(string)

	// cart is frozen until the payment resolves
	res, _ = b.do("POST", "/api/v1/cart/2", "")
	assert.Equal(t, fiber.StatusConflict, res.StatusCode)
	res, _ = b.do("POST", "/api/v1/checkout/quote", "")
	assert.Equal(t, fiber.StatusConflict, res.StatusCode)

	res, body = b.do("GET", "/api/v1/checkout", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Equal(t, string(session.StateAwaitingConfirmation), body["state"])

	cb := `{"paymentId":"pay_1","orderId":"` + orderID + `","signature":"sig-` + orderID + `-pay_1"}`
	res, body = b.do("POST", "/api/v1/checkout/confirm", cb)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Len(t, body["orders"], 2)
	assert.Len(t, f.orders.Orders(), 2)

	res, body = b.do("GET", "/api/v1/cart", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Equal(t, float64(0), body["count"])

	// the callback fires twice; nothing more is written
	res, _ = b.do("POST", "/api/v1/checkout/confirm", cb)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	assert.Len(t, f.orders.Orders(), 2)
}

func TestCheckoutRoutes_EmptyCart(t *testing.T) {
	app, _ := makeCheckoutApp(t)
	b := &browser{t: t, app: app}

	res, _ := b.do("POST", "/api/v1/checkout/orders", "")
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
}

func TestCheckoutRoutes_UnknownAddress(t *testing.T) {
	app, f := makeCheckoutApp(t)
	b := &browser{t: t, app: app}
	b.do("POST", "/api/v1/cart/1", "")

	res, _ := b.do("POST", "/api/v1/checkout/orders", `{"deliveryAddress":"Nowhere Lane"}`)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	assert.Zero(t, f.gateway.intents)
}

func TestCheckoutRoutes_GatewayDown(t *testing.T) {
	app, f := makeCheckoutApp(t)
	f.gateway.intentErr = &payment.GatewayError{Op: "create order", Err: io.ErrUnexpectedEOF}
	b := &browser{t: t, app: app}
	b.do("POST", "/api/v1/cart/1", "")

	res, body := b.do("POST", "/api/v1/checkout/orders", "")
	assert.Equal(t, fiber.StatusBadGateway, res.StatusCode)
	assert.NotContains(t, body["message"], "EOF")

	// nothing pending: the cart is still editable
	res, _ = b.do("POST", "/api/v1/cart/2", "")
	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}

func TestCheckoutRoutes_CancelUnfreezesCart(t *testing.T) {
	app, _ := makeCheckoutApp(t)
	b := &browser{t: t, app: app}
	b.do("POST", "/api/v1/cart/1", "")

	res, _ := b.do("POST", "/api/v1/checkout/orders", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	res, _ = b.do("DELETE", "/api/v1/checkout/orders", "")
	assert.Equal(t, fiber.StatusNoContent, res.StatusCode)

	res, _ = b.do("POST", "/api/v1/cart/2", "")
	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}

func TestCheckoutRoutes_SaveDeliveryAddress(t *testing.T) {
	app, _ := makeCheckoutApp(t)
	b := &browser{t: t, app: app}

	res, _ := b.do("POST", "/api/v1/checkout/delivery-address", `{"deliveryAddress":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)

	res, body := b.do("POST", "/api/v1/checkout/delivery-address", `{"deliveryAddress":"Far Away Home"}`)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.Equal(t, "Far Away Home", body["deliveryAddress"])

	b.do("POST", "/api/v1/cart/1", "")
	res, body = b.do("POST", "/api/v1/checkout/quote", "")
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	// 120 + 150 (40km)
	assert.Equal(t, "270", body["total"])
}
