package monthly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wichananm65/homemeal-backend/internal/payment"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

const (
	// gateway receipts are capped at 40 characters
	receiptMaxLen  = 40
	mealPlanMaxLen = 40
)

// ErrPlanPending is returned when another plan payment is still outstanding.
var ErrPlanPending = errors.New("a monthly plan payment is awaiting confirmation")

// ValidationError is a client-side problem. Reason is safe to show.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (payment.Intent, error)
	VerifySignature(orderID, paymentID, signature string) error
	VerifyPayment(ctx context.Context, orderID, paymentID string) (payment.Payment, error)
	Currency() string
}

type CustomerDirectory interface {
	Address(ctx context.Context, customerID int) (string, error)
}

type Deps struct {
	Repo      Repository
	Gateway   Gateway
	Customers CustomerDirectory
	Log       *slog.Logger
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	gateway   Gateway
	customers CustomerDirectory
	log       *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{repo: d.Repo, gateway: d.Gateway, customers: d.Customers, log: d.Log, now: d.Now}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// StartRequest picks the meal and plan to buy.
type StartRequest struct {
	MealID          int    `json:"mealId"`
	MealPlan        string `json:"mealPlan"`
	DeliveryAddress string `json:"deliveryAddress"`
}

// Callback is what the payment page posts back after the customer paid.
type Callback struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
}

type Result struct {
	AlreadySettled bool         `json:"alreadySettled"`
	Subscription   Subscription `json:"subscription"`
}

func (s *Service) Menu(ctx context.Context, sellerID int) (Menu, error) {
	if sellerID <= 0 {
		return Menu{}, ErrSellerNotFound
	}
	return s.repo.Menu(ctx, sellerID)
}

// Start creates the gateway order for a plan and keeps it on the session
// until confirmation. Starting the same plan again returns the pending one.
func (s *Service) Start(ctx context.Context, cs *session.CheckoutSession, req StartRequest) (session.PlanDraft, error) {
	plan := strings.TrimSpace(req.MealPlan)
	if plan == "" {
		return session.PlanDraft{}, invalid("meal plan is required")
	}
	if len(plan) > mealPlanMaxLen {
		return session.PlanDraft{}, invalid("meal plan is too long")
	}
	if p := cs.Plan; p != nil {
		if p.MealID == req.MealID && p.MealPlan == plan {
			return *p, nil
		}
		return session.PlanDraft{}, ErrPlanPending
	}

	offer, err := s.repo.Offer(ctx, req.MealID)
	if err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			return session.PlanDraft{}, invalid("meal is not offered as a monthly plan")
		}
		return session.PlanDraft{}, err
	}
	address, err := s.address(ctx, cs, req.DeliveryAddress)
	if err != nil {
		return session.PlanDraft{}, err
	}

	total := offer.PlanPrice()
	amountMinor := payment.ToMinor(total)
	if amountMinor <= 0 {
		return session.PlanDraft{}, invalid("plan price must be positive")
	}

	now := s.now()
	receipt := fmt.Sprintf("monthly_%d_%d_%d", offer.SellerID, cs.CustomerID, now.Unix())
	if len(receipt) > receiptMaxLen {
		receipt = receipt[:receiptMaxLen]
	}
	in, err := s.gateway.CreateIntent(ctx, amountMinor, s.gateway.Currency(), receipt)
	if err != nil {
		return session.PlanDraft{}, err
	}
	if in.Amount == 0 {
		in.Amount = amountMinor
	}
	if in.Currency == "" {
		in.Currency = s.gateway.Currency()
	}

	draft := session.PlanDraft{
		IntentID:        in.ID,
		AmountMinor:     in.Amount,
		Currency:        in.Currency,
		Receipt:         receipt,
		SellerID:        offer.SellerID,
		MealID:          offer.MealID,
		MealName:        offer.Name,
		MealPlan:        plan,
		DeliveryAddress: address,
		Total:           total,
		CreatedAt:       now.UTC(),
	}
	cs.Plan = &draft
	s.log.Info("monthly: plan intent ready", "customer_id", cs.CustomerID, "intent_id", in.ID, "meal_id", offer.MealID, "amount_minor", in.Amount)
	return draft, nil
}

func (s *Service) address(ctx context.Context, cs *session.CheckoutSession, explicit string) (string, error) {
	if a := strings.TrimSpace(explicit); a != "" {
		return a, nil
	}
	if a := strings.TrimSpace(cs.DeliveryAddress); a != "" {
		return a, nil
	}
	if s.customers != nil {
		a, err := s.customers.Address(ctx, cs.CustomerID)
		if err != nil {
			return "", err
		}
		if a = strings.TrimSpace(a); a != "" {
			return a, nil
		}
	}
	return "", invalid("delivery address is required")
}

// Cancel drops a pending plan payment.
func (s *Service) Cancel(cs *session.CheckoutSession) {
	if cs.Plan != nil {
		s.log.Info("monthly: plan intent abandoned", "customer_id", cs.CustomerID, "intent_id", cs.Plan.IntentID)
	}
	cs.Plan = nil
}

// Confirm verifies the callback against the pending plan and records it.
// A failed confirmation keeps the plan so the callback can be retried.
func (s *Service) Confirm(ctx context.Context, cs *session.CheckoutSession, cb Callback) (Result, error) {
	p := cs.Plan
	switch {
	case p == nil:
		return Result{}, invalid("no monthly plan payment is pending")
	case cb.OrderID == "" || cb.PaymentID == "" || cb.Signature == "":
		return Result{}, invalid("payment callback is incomplete")
	case cb.OrderID != p.IntentID:
		return Result{}, invalid("payment does not belong to the pending plan")
	}

	if err := s.gateway.VerifySignature(cb.OrderID, cb.PaymentID, cb.Signature); err != nil {
		return Result{}, invalid("payment could not be verified")
	}
	paid, err := s.gateway.VerifyPayment(ctx, cb.OrderID, cb.PaymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentMismatch) || errors.Is(err, payment.ErrNotPaid) {
			return Result{}, invalid("payment could not be verified")
		}
		return Result{}, err
	}
	if paid.Amount != p.AmountMinor {
		return Result{}, invalid("payment amount does not match the plan")
	}

	sub, already, err := s.repo.Settle(ctx, Enrollment{
		GatewayOrderID:  p.IntentID,
		PaymentID:       cb.PaymentID,
		CustomerID:      cs.CustomerID,
		SellerID:        p.SellerID,
		MealID:          p.MealID,
		MealName:        p.MealName,
		MealPlan:        p.MealPlan,
		DeliveryAddress: p.DeliveryAddress,
		Price:           p.Total,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	cs.Plan = nil
	if already {
		s.log.Info("monthly: duplicate confirmation ignored", "customer_id", cs.CustomerID, "intent_id", p.IntentID)
	} else {
		s.log.Info("monthly: plan recorded", "customer_id", cs.CustomerID, "intent_id", p.IntentID, "subscription_id", sub.ID)
	}
	return Result{AlreadySettled: already, Subscription: sub}, nil
}

// History lists the customer's plans, newest first.
func (s *Service) History(ctx context.Context, customerID int) ([]Subscription, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}
