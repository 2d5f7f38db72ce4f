package order

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/cart"
)

// StatusDelivered is the only status ever stored; what the customer sees
// is derived from elapsed preparation time.
const StatusDelivered = "Delivered"

const (
	DisplayPreparing = "preparing"
	DisplayDelivered = "delivered"

	deliveryGrace = 15 * time.Minute
)

// Record is one row of order_history. A checkout with K cart lines
// produces K records.
type Record struct {
	ID              int             `json:"orderId"`
	CustomerID      int             `json:"customerId"`
	SellerID        int             `json:"sellerId"`
	MealID          int             `json:"mealId"`
	MealName        string          `json:"mealName"`
	Amount          decimal.Decimal `json:"orderAmount"`
	Status          string          `json:"orderStatus"`
	OrderDate       time.Time       `json:"orderDate"`
	DeliveryAddress string          `json:"deliveryAddress"`
	GatewayOrderID  string          `json:"-"`
}

// HistoryEntry is a record with its display status.
type HistoryEntry struct {
	Record
	PrepTime      time.Duration `json:"-"`
	DisplayStatus string        `json:"displayStatus"`
}

// DisplayStatus is "preparing" until the meal's prep time plus a delivery
// grace period has elapsed since the order was placed.
func DisplayStatus(orderDate time.Time, prep time.Duration, now time.Time) string {
	if now.Before(orderDate.Add(prep + deliveryGrace)) {
		return DisplayPreparing
	}
	return DisplayDelivered
}

// Settlement is everything needed to persist a confirmed payment.
type Settlement struct {
	GatewayOrderID  string
	PaymentID       string
	CustomerID      int
	AmountMinor     int64
	DeliveryAddress string
	Lines           []cart.Line
	SettledAt       time.Time
}

// Reward is the coupon granted to a referrer on the referred customer's
// first order.
type Reward struct {
	ReferrerID int
	Coupon     string
}

type SettleResult struct {
	// AlreadySettled means the gateway order was recorded by an earlier
	// confirmation; nothing was written this time.
	AlreadySettled bool
	Orders         []Record
	FirstOrder     bool
	Reward         *Reward
}

func records(s Settlement) []Record {
	out := make([]Record, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, Record{
			CustomerID:      s.CustomerID,
			SellerID:        l.SellerID,
			MealID:          l.MealID,
			MealName:        l.Name,
			Amount:          l.Price,
			Status:          StatusDelivered,
			OrderDate:       s.SettledAt,
			DeliveryAddress: s.DeliveryAddress,
			GatewayOrderID:  s.GatewayOrderID,
		})
	}
	return out
}
