package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/outbound"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := outbound.Config{Timeout: time.Second, MaxRetries: 2, InitialBackoff: time.Millisecond}
	return NewClient(Config{
		BaseURL:       srv.URL,
		IFSCBaseURL:   srv.URL + "/ifsc",
		KeyID:         "rzp_test",
		KeySecret:     "secret",
		PayoutAccount: "7878780080316316",
	}, outbound.New("razorpay", cfg), outbound.New("ifsc", cfg))
}

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateIntent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		var body createOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 40000, body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, 1, body.PaymentCapture)
		_ = json.NewEncoder(w).Encode(Intent{ID: "order_1", Amount: body.Amount, Currency: body.Currency, Receipt: body.Receipt})
	}))

	in, err := c.CreateIntent(context.Background(), 40000, "", "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", in.ID)
	assert.Equal(t, "rcpt_1", in.Receipt)
}

func TestCreateIntent_RejectsNonPositiveBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))

	_, err := c.CreateIntent(context.Background(), 0, "INR", "r")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.CreateIntent(context.Background(), -5, "INR", "r")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Zero(t, hits.Load())
}

func TestCreateIntent_GatewayFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.CreateIntent(context.Background(), 100, "INR", "r")
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.EqualValues(t, 1, hits.Load())
}

func TestVerifySignature(t *testing.T) {
	c := NewClient(Config{KeySecret: "secret"}, nil, nil)
	assert.NoError(t, c.VerifySignature("order_1", "pay_1", sign("secret", "order_1", "pay_1")))
	assert.ErrorIs(t, c.VerifySignature("order_1", "pay_1", sign("other", "order_1", "pay_1")), ErrSignatureMismatch)
	assert.ErrorIs(t, c.VerifySignature("order_2", "pay_1", sign("secret", "order_1", "pay_1")), ErrSignatureMismatch)
	assert.ErrorIs(t, c.VerifySignature("order_1", "pay_1", ""), ErrSignatureMismatch)
}

func TestVerifyPayment(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/pay_ok":
			_ = json.NewEncoder(w).Encode(Payment{ID: "pay_ok", OrderID: "order_1", Status: "captured"})
		case "/v1/payments/pay_failed":
			_ = json.NewEncoder(w).Encode(Payment{ID: "pay_failed", OrderID: "order_1", Status: "failed"})
		default:
			_ = json.NewEncoder(w).Encode(Payment{ID: "pay_x", OrderID: "order_9", Status: "captured"})
		}
	}))

	_, err := c.VerifyPayment(context.Background(), "order_1", "pay_ok")
	assert.NoError(t, err)
	_, err = c.VerifyPayment(context.Background(), "order_1", "pay_failed")
	assert.ErrorIs(t, err, ErrNotPaid)
	_, err = c.VerifyPayment(context.Background(), "order_1", "pay_x")
	assert.ErrorIs(t, err, ErrPaymentMismatch)
}

func TestPayout_ConvertsToMinorAndRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		assert.Equal(t, "payout-key-1", r.Header.Get("X-Payout-Idempotency"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body payoutBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 25050, body.Amount)
		assert.Equal(t, "SBIN0000001", body.BankAccount.IFSC)
		assert.Equal(t, "7878780080316316", body.AccountNumber)
		_ = json.NewEncoder(w).Encode(PayoutResult{ID: "pout_1", Status: "processing", Amount: body.Amount})
	}))

	res, err := c.Payout(context.Background(), PayoutRequest{
		AccountNumber:  "1234",
		IFSC:           "SBIN0000001",
		Amount:         decimal.RequireFromString("250.50"),
		IdempotencyKey: "payout-key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pout_1", res.ID)
	assert.EqualValues(t, 2, hits.Load())
}

func TestPayout_Failure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.Payout(context.Background(), PayoutRequest{AccountNumber: "1", IFSC: "X", Amount: decimal.NewFromInt(10)})
	var pe *PayoutError
	assert.ErrorAs(t, err, &pe)

	_, err = c.Payout(context.Background(), PayoutRequest{Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBranchForIFSC(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ifsc/SBIN0000001":
			_, _ = w.Write([]byte(`{"BRANCH":"MG ROAD","BANK":"State Bank of India"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	branch, err := c.BranchForIFSC(context.Background(), "sbin0000001")
	require.NoError(t, err)
	assert.Equal(t, "MG ROAD", branch)

	_, err = c.BranchForIFSC(context.Background(), "NOPE0000000")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestToMinor(t *testing.T) {
	assert.EqualValues(t, 40000, ToMinor(decimal.NewFromInt(400)))
	assert.EqualValues(t, 1999, ToMinor(decimal.RequireFromString("19.99")))
	assert.EqualValues(t, 1, ToMinor(decimal.RequireFromString("0.005")))
}
