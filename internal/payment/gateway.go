// Package payment talks to the Razorpay REST API: order (intent) creation,
// payment lookup, signature checks and seller payouts.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/outbound"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrPaymentMismatch   = errors.New("payment does not belong to order")
	ErrNotPaid           = errors.New("payment is not authorized or captured")
	ErrBranchNotFound    = errors.New("branch not found for IFSC")
)

type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

type PayoutError struct {
	AccountNumber string
	Err           error
}

func (e *PayoutError) Error() string { return fmt.Sprintf("payout: %v", e.Err) }
func (e *PayoutError) Unwrap() error { return e.Err }

// Intent is the gateway order the client pays against.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Paid reports whether the money is secured.
func (p Payment) Paid() bool {
	return p.Status == "authorized" || p.Status == "captured"
}

type PayoutRequest struct {
	AccountHolder  string
	AccountNumber  string
	IFSC           string
	Amount         decimal.Decimal
	IdempotencyKey string
	Reference      string
}

type PayoutResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type Config struct {
	BaseURL       string
	IFSCBaseURL   string
	KeyID         string
	KeySecret     string
	PayoutAccount string
	Currency      string
}

type Client struct {
	cfg  Config
	api  *outbound.Client
	ifsc *outbound.Client
}

func NewClient(cfg Config, api, ifsc *outbound.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.IFSCBaseURL = strings.TrimRight(cfg.IFSCBaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Client{cfg: cfg, api: api, ifsc: ifsc}
}

// Currency is the default settlement currency.
func (c *Client) Currency() string { return c.cfg.Currency }

// ToMinor converts a major-unit amount to minor units (paise), rounding half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (c *Client) call(ctx context.Context, method, path string, payload any, header http.Header, retry bool, out any) error {
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	body, err := c.api.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
		req.Header.Set("Accept", "application/json")
		if raw != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	}, retry)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// CreateIntent opens a gateway order for amountMinor. It is not retried
// here; callers de-duplicate with an idempotency key.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error) {
	if amountMinor <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	if currency == "" {
		currency = c.cfg.Currency
	}
	var in Intent
	err := c.call(ctx, http.MethodPost, "/v1/orders", createOrderRequest{
		Amount:         amountMinor,
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	}, nil, false, &in)
	if err != nil {
		return Intent{}, &GatewayError{Op: "create order", Err: err}
	}
	if in.ID == "" {
		return Intent{}, &GatewayError{Op: "create order", Err: errors.New("empty order id")}
	}
	return in, nil
}

// FetchPayment loads the payment as the gateway sees it.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if paymentID == "" {
		return Payment{}, &GatewayError{Op: "fetch payment", Err: errors.New("empty payment id")}
	}
	var p Payment
	if err := c.call(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, nil, true, &p); err != nil {
		return Payment{}, &GatewayError{Op: "fetch payment", Err: err}
	}
	return p, nil
}

// VerifyPayment checks that paymentID was paid against orderID.
func (c *Client) VerifyPayment(ctx context.Context, orderID, paymentID string) (Payment, error) {
	p, err := c.FetchPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.OrderID != orderID {
		return p, ErrPaymentMismatch
	}
	if !p.Paid() {
		return p, ErrNotPaid
	}
	return p, nil
}

// VerifySignature checks the checkout callback signature:
// hex(HMAC-SHA256(orderID + "|" + paymentID, key secret)).
func (c *Client) VerifySignature(orderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.cfg.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

type payoutBody struct {
	AccountNumber     string      `json:"account_number"`
	BankAccount       bankAccount `json:"bank_account"`
	Amount            int64       `json:"amount"`
	Currency          string      `json:"currency"`
	Mode              string      `json:"mode"`
	Purpose           string      `json:"purpose"`
	ReferenceID       string      `json:"reference_id,omitempty"`
	QueueIfLowBalance bool        `json:"queue_if_low_balance"`
}

type bankAccount struct {
	Name          string `json:"name,omitempty"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc_code"`
}

// Payout transfers req.Amount (major units) to a seller's bank account.
// The idempotency key makes retries safe on the gateway side.
func (c *Client) Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error) {
	minor := ToMinor(req.Amount)
	if minor <= 0 {
		return PayoutResult{}, &PayoutError{AccountNumber: req.AccountNumber, Err: ErrInvalidAmount}
	}
	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set("X-Payout-Idempotency", req.IdempotencyKey)
	}
	var res PayoutResult
	err := c.call(ctx, http.MethodPost, "/v1/payouts", payoutBody{
		AccountNumber: c.cfg.PayoutAccount,
		BankAccount: bankAccount{
			Name:          req.AccountHolder,
			AccountNumber: req.AccountNumber,
			IFSC:          req.IFSC,
		},
		Amount:            minor,
		Currency:          c.cfg.Currency,
		Mode:              "IMPS",
		Purpose:           "payout",
		ReferenceID:       req.Reference,
		QueueIfLowBalance: true,
	}, header, true, &res)
	if err != nil {
		return PayoutResult{}, &PayoutError{AccountNumber: req.AccountNumber, Err: err}
	}
	return res, nil
}

type ifscResponse struct {
	Branch string `json:"BRANCH"`
}

// BranchForIFSC looks up the bank branch name for an IFSC code.
func (c *Client) BranchForIFSC(ctx context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrBranchNotFound
	}
	body, err := c.ifsc.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.IFSCBaseURL+"/"+url.PathEscape(code), nil)
	}, true)
	if err != nil {
		var se *outbound.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return "", ErrBranchNotFound
		}
		return "", err
	}
	var res ifscResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode ifsc response: %w", err)
	}
	if res.Branch == "" {
		return "", ErrBranchNotFound
	}
	return res.Branch, nil
}
