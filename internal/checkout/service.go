// Package checkout drives a customer's cart through pricing, payment intent
// creation and confirmation into persisted orders and seller payouts.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/cart"
	"github.com/wichananm65/homemeal-backend/internal/delivery"
	"github.com/wichananm65/homemeal-backend/internal/idempotency"
	"github.com/wichananm65/homemeal-backend/internal/order"
	"github.com/wichananm65/homemeal-backend/internal/payment"
	"github.com/wichananm65/homemeal-backend/internal/referral"
	"github.com/wichananm65/homemeal-backend/internal/seller"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

const (
	receiptPrefix = "rcpt_"
	// gateway receipts are capped at 40 characters
	receiptMaxLen = 40
)

// ErrPending is returned when a step needs the cart but a payment intent is
// still outstanding.
var ErrPending = errors.New("a payment is awaiting confirmation")

// ValidationError is a client-side problem. Reason is safe to show.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type Pricer interface {
	QuoteSellers(ctx context.Context, stops []delivery.SellerStop, customerAddress string) (delivery.Breakdown, error)
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (payment.Intent, error)
	VerifySignature(orderID, paymentID, signature string) error
	VerifyPayment(ctx context.Context, orderID, paymentID string) (payment.Payment, error)
	Payout(ctx context.Context, req payment.PayoutRequest) (payment.PayoutResult, error)
	Currency() string
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

type SellerDirectory interface {
	Addresses(ctx context.Context, ids []int) (map[int]string, error)
	BankDetails(ctx context.Context, sellerID int) (seller.BankDetails, error)
}

type CustomerDirectory interface {
	Address(ctx context.Context, customerID int) (string, error)
}

type OrderStore interface {
	Settle(ctx context.Context, s order.Settlement, newCoupon func() string) (order.SettleResult, error)
}

type Deps struct {
	Pricer      Pricer
	Gateway     Gateway
	Idempotency IdempotencyStore
	Sellers     SellerDirectory
	Customers   CustomerDirectory
	Orders      OrderStore
	Notifier    referral.Notifier
	Log         *slog.Logger
	Now         func() time.Time
	NewCoupon   func() string
}

type Service struct {
	pricer    Pricer
	gateway   Gateway
	idem      IdempotencyStore
	sellers   SellerDirectory
	customers CustomerDirectory
	orders    OrderStore
	notifier  referral.Notifier
	log       *slog.Logger
	now       func() time.Time
	newCoupon func() string
}

func NewService(d Deps) *Service {
	s := &Service{
		pricer:    d.Pricer,
		gateway:   d.Gateway,
		idem:      d.Idempotency,
		sellers:   d.Sellers,
		customers: d.Customers,
		orders:    d.Orders,
		notifier:  d.Notifier,
		log:       d.Log,
		now:       d.Now,
		newCoupon: d.NewCoupon,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCoupon == nil {
		s.newCoupon = referral.GenerateCoupon
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Quote is the priced cart.
type Quote struct {
	Items           []cart.Line             `json:"items"`
	DeliveryAddress string                  `json:"deliveryAddress"`
	Deliveries      []delivery.Quote        `json:"deliveries"`
	SellerFees      map[int]decimal.Decimal `json:"-"`
	Subtotal        decimal.Decimal         `json:"subtotal"`
	DeliveryTotal   decimal.Decimal         `json:"deliveryTotal"`
	Total           decimal.Decimal         `json:"total"`
}

// SaveDeliveryAddress stores the address for later steps and drops any
// quote computed for the previous one.
func (s *Service) SaveDeliveryAddress(cs *session.CheckoutSession, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return invalid("delivery address is required")
	}
	if cs.Pending() {
		return ErrPending
	}
	cs.DeliveryAddress = address
	cs.State = session.StateCartReady
	return nil
}

// Quote prices the cart: line prices plus one delivery fee per seller.
func (s *Service) Quote(ctx context.Context, cs *session.CheckoutSession, address string) (Quote, error) {
	if cs.Pending() {
		return Quote{}, ErrPending
	}
	q, err := s.price(ctx, cs, address)
	if err != nil {
		return Quote{}, err
	}
	cs.DeliveryAddress = q.DeliveryAddress
	cs.State = session.StateQuoteComputed
	cs.LastError = ""
	return q, nil
}

// price computes a quote without touching the session.
func (s *Service) price(ctx context.Context, cs *session.CheckoutSession, address string) (Quote, error) {
	if err := cart.Validate(cs.Cart); err != nil {
		return Quote{}, invalid("%s", err.Error())
	}
	addr, err := s.resolveAddress(ctx, cs, address)
	if err != nil {
		return Quote{}, err
	}

	ids := cart.SellerIDs(cs.Cart)
	addrs, err := s.sellers.Addresses(ctx, ids)
	if err != nil {
		return Quote{}, fmt.Errorf("load seller addresses: %w", err)
	}
	stops := make([]delivery.SellerStop, 0, len(ids))
	for _, id := range ids {
		a, ok := addrs[id]
		if !ok || strings.TrimSpace(a) == "" {
			return Quote{}, invalid("a meal in the cart is no longer available")
		}
		stops = append(stops, delivery.SellerStop{SellerID: id, Address: a})
	}

	b, err := s.pricer.QuoteSellers(ctx, stops, addr)
	if err != nil {
		return Quote{}, err
	}

	subtotal := cart.Subtotal(cs.Cart)
	return Quote{
		Items:           append([]cart.Line(nil), cs.Cart...),
		DeliveryAddress: addr,
		Deliveries:      b.Quotes,
		SellerFees:      b.Fees(),
		Subtotal:        subtotal,
		DeliveryTotal:   b.Total,
		Total:           subtotal.Add(b.Total),
	}, nil
}

// resolveAddress prefers the explicit address, then the one saved in the
// session, then the customer's profile.
func (s *Service) resolveAddress(ctx context.Context, cs *session.CheckoutSession, address string) (string, error) {
	if a := strings.TrimSpace(address); a != "" {
		return a, nil
	}
	if a := strings.TrimSpace(cs.DeliveryAddress); a != "" {
		return a, nil
	}
	if s.customers != nil {
		a, err := s.customers.Address(ctx, cs.CustomerID)
		if err != nil {
			s.log.Warn("checkout: profile address lookup failed", "customer_id", cs.CustomerID, "error", err)
		} else if a = strings.TrimSpace(a); a != "" {
			return a, nil
		}
	}
	return "", invalid("delivery address is required")
}

// CreateIntent prices the cart and opens a payment intent for the total.
// An identical request inside the idempotency window reuses the intent
// instead of opening another. On failure the session is left untouched.
func (s *Service) CreateIntent(ctx context.Context, cs *session.CheckoutSession, address string) (session.Draft, error) {
	if cs.Pending() {
		return *cs.Draft, nil
	}
	q, err := s.price(ctx, cs, address)
	if err != nil {
		return session.Draft{}, err
	}
	amountMinor := payment.ToMinor(q.Total)
	if amountMinor <= 0 {
		return session.Draft{}, invalid("order total must be positive")
	}

	now := s.now()
	key := idempotency.IntentKey(cs.CustomerID, cs.Cart, q.DeliveryAddress, now)
	intent, err := s.intentFor(ctx, key, amountMinor)
	if err != nil {
		return session.Draft{}, err
	}

	draft := session.Draft{
		IntentID:        intent.ID,
		AmountMinor:     intent.Amount,
		Currency:        intent.Currency,
		Receipt:         intent.Receipt,
		IdempotencyKey:  key,
		CustomerID:      cs.CustomerID,
		Lines:           q.Items,
		DeliveryAddress: q.DeliveryAddress,
		SellerFees:      q.SellerFees,
		Subtotal:        q.Subtotal,
		DeliveryTotal:   q.DeliveryTotal,
		Total:           q.Total,
		CreatedAt:       now.UTC(),
	}
	cs.DeliveryAddress = q.DeliveryAddress
	cs.Draft = &draft
	cs.State = session.StateAwaitingConfirmation
	cs.LastError = ""
	s.log.Info("checkout: intent ready", "customer_id", cs.CustomerID, "intent_id", intent.ID, "amount_minor", intent.Amount)
	return draft, nil
}

func (s *Service) intentFor(ctx context.Context, key string, amountMinor int64) (payment.Intent, error) {
	if in, ok := s.cachedIntent(ctx, key); ok && in.Amount == amountMinor {
		return in, nil
	}

	receipt := receiptPrefix + key
	if len(receipt) > receiptMaxLen {
		receipt = receipt[:receiptMaxLen]
	}
	in, err := s.gateway.CreateIntent(ctx, amountMinor, s.gateway.Currency(), receipt)
	if err != nil {
		return payment.Intent{}, err
	}
	if in.Amount == 0 {
		in.Amount = amountMinor
	}
	if in.Currency == "" {
		in.Currency = s.gateway.Currency()
	}
	if in.Receipt == "" {
		in.Receipt = receipt
	}

	if s.idem != nil {
		raw, _ := json.Marshal(in)
		stored, err := s.idem.Put(ctx, key, raw)
		switch {
		case err != nil:
			s.log.Warn("checkout: idempotency store write failed", "error", err)
		case !stored:
			// lost a race; the first intent wins
			if prev, ok := s.cachedIntent(ctx, key); ok {
				return prev, nil
			}
		}
	}
	return in, nil
}

func (s *Service) cachedIntent(ctx context.Context, key string) (payment.Intent, bool) {
	if s.idem == nil {
		return payment.Intent{}, false
	}
	raw, err := s.idem.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, idempotency.ErrMiss) {
			s.log.Warn("checkout: idempotency store read failed", "error", err)
		}
		return payment.Intent{}, false
	}
	var in payment.Intent
	if err := json.Unmarshal(raw, &in); err != nil || in.ID == "" {
		return payment.Intent{}, false
	}
	return in, true
}

func (s *Service) forgetIntent(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.log.Warn("checkout: idempotency store delete failed", "error", err)
	}
}

// Cancel abandons the outstanding intent and unfreezes the cart.
func (s *Service) Cancel(cs *session.CheckoutSession) {
	if cs.Draft != nil {
		s.log.Info("checkout: intent cancelled", "customer_id", cs.CustomerID, "intent_id", cs.Draft.IntentID)
	}
	cs.Draft = nil
	cs.State = session.StateCartReady
	cs.LastError = ""
}

// Callback is what the payment page posts back after the customer pays.
type Callback struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
}

type PayoutOutcome struct {
	SellerID int             `json:"sellerId"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
	PayoutID string          `json:"payoutId,omitempty"`
}

const (
	PayoutSent    = "sent"
	PayoutSkipped = "skipped"
	PayoutFailed  = "failed"
)

type Result struct {
	AlreadySettled bool            `json:"alreadySettled"`
	Orders         []order.Record  `json:"orders"`
	Total          decimal.Decimal `json:"total"`
	CouponIssued   bool            `json:"-"`
	Payouts        []PayoutOutcome `json:"-"`
}

// Confirm verifies the payment and settles the draft. Orders, the
// settlement marker and any referral coupon are written in one
// transaction; payouts run only after it commits. Confirming the same
// gateway order twice writes nothing the second time.
func (s *Service) Confirm(ctx context.Context, cs *session.CheckoutSession, cb Callback) (Result, error) {
	res, err := s.confirm(ctx, cs, cb)
	if err != nil {
		if cs.Draft != nil {
			cs.State = session.StateFailed
			cs.LastError = "payment confirmation failed"
		}
		return Result{}, err
	}
	cs.Cart = cart.Clear()
	cs.Draft = nil
	cs.State = session.StateConfirmed
	cs.LastError = ""
	return res, nil
}

func (s *Service) confirm(ctx context.Context, cs *session.CheckoutSession, cb Callback) (Result, error) {
	d := cs.Draft
	switch {
	case d == nil:
		return Result{}, invalid("no pending order")
	case d.CustomerID == 0 || d.CustomerID != cs.CustomerID:
		return Result{}, invalid("no pending order")
	case len(d.Lines) == 0:
		return Result{}, invalid("pending order has no items")
	case strings.TrimSpace(d.DeliveryAddress) == "":
		return Result{}, invalid("delivery address is required")
	case d.IntentID == "":
		return Result{}, invalid("no pending order")
	}
	if cb.PaymentID == "" || cb.OrderID == "" || cb.Signature == "" {
		return Result{}, invalid("paymentId, orderId and signature are required")
	}
	if cb.OrderID != d.IntentID {
		return Result{}, invalid("order does not match the pending payment")
	}
	if !linesPresent(d.Lines, cs.Cart) {
		return Result{}, invalid("cart changed since the payment was started")
	}

	if err := s.gateway.VerifySignature(cb.OrderID, cb.PaymentID, cb.Signature); err != nil {
		return Result{}, invalid("payment could not be verified")
	}
	p, err := s.gateway.VerifyPayment(ctx, cb.OrderID, cb.PaymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentMismatch) || errors.Is(err, payment.ErrNotPaid) {
			return Result{}, invalid("payment could not be verified")
		}
		return Result{}, err
	}
	if p.Amount != d.AmountMinor {
		return Result{}, invalid("payment amount does not match the order")
	}

	settled, err := s.orders.Settle(ctx, order.Settlement{
		GatewayOrderID:  d.IntentID,
		PaymentID:       cb.PaymentID,
		CustomerID:      cs.CustomerID,
		AmountMinor:     d.AmountMinor,
		DeliveryAddress: d.DeliveryAddress,
		Lines:           d.Lines,
		SettledAt:       s.now().UTC(),
	}, s.newCoupon)
	if err != nil {
		return Result{}, err
	}
	// a paid intent must not be handed out again for the same cart
	s.forgetIntent(ctx, d.IdempotencyKey)
	if settled.AlreadySettled {
		// payouts carry per-seller idempotency keys, so re-sending them
		// finishes a run that stopped after the orders were written
		s.log.Info("checkout: duplicate confirmation ignored", "customer_id", cs.CustomerID, "intent_id", d.IntentID)
		return Result{AlreadySettled: true, Total: d.Total, Payouts: s.payout(ctx, d)}, nil
	}

	s.log.Info("checkout: orders recorded", "customer_id", cs.CustomerID, "intent_id", d.IntentID, "orders", len(settled.Orders))
	res := Result{Orders: settled.Orders, Total: d.Total}

	if settled.Reward != nil {
		res.CouponIssued = true
		s.notifyReferrer(ctx, cs.CustomerID, *settled.Reward)
	}
	res.Payouts = s.payout(ctx, d)
	return res, nil
}

func linesPresent(want, have []cart.Line) bool {
	inCart := make(map[int]bool, len(have))
	for _, l := range have {
		inCart[l.MealID] = true
	}
	for _, l := range want {
		if !inCart[l.MealID] {
			return false
		}
	}
	return true
}

// notifyReferrer never fails the checkout; the coupon is already stored.
func (s *Service) notifyReferrer(ctx context.Context, customerID int, r order.Reward) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyReferrer(ctx, referral.CouponIssued{
		EventID:            uuid.NewString(),
		ReferrerID:         r.ReferrerID,
		ReferredCustomerID: customerID,
		Coupon:             r.Coupon,
		IssuedAt:           s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("checkout: referrer notification failed", "referrer_id", r.ReferrerID, "error", err)
	}
}

// payout pays each seller their line subtotal plus their delivery fee.
// Failures are logged; the orders stay recorded.
func (s *Service) payout(ctx context.Context, d *session.Draft) []PayoutOutcome {
	subtotals := cart.SellerSubtotals(d.Lines)
	out := make([]PayoutOutcome, 0, len(subtotals))
	for _, id := range cart.SellerIDs(d.Lines) {
		amount := subtotals[id].Add(d.SellerFees[id])
		outcome := PayoutOutcome{SellerID: id, Amount: amount}

		bank, err := s.sellers.BankDetails(ctx, id)
		if err != nil {
			if errors.Is(err, seller.ErrBankDetailsNotFound) {
				s.log.Warn("checkout: seller has no bank details, payout skipped", "seller_id", id, "intent_id", d.IntentID)
			} else {
				s.log.Error("checkout: bank details lookup failed", "seller_id", id, "error", err)
			}
			outcome.Status = PayoutSkipped
			out = append(out, outcome)
			continue
		}

		res, err := s.gateway.Payout(ctx, payment.PayoutRequest{
			AccountHolder:  bank.AccountHolderName,
			AccountNumber:  bank.AccountNumber,
			IFSC:           bank.IFSCCode,
			Amount:         amount,
			IdempotencyKey: fmt.Sprintf("%s-%d", d.IntentID, id),
			Reference:      d.Receipt,
		})
		if err != nil {
			s.log.Error("checkout: payout failed", "seller_id", id, "intent_id", d.IntentID, "amount", amount.String(), "error", err)
			outcome.Status = PayoutFailed
		} else {
			outcome.Status = PayoutSent
			outcome.PayoutID = res.ID
		}
		out = append(out, outcome)
	}
	return out
}
