// Package monthly sells month-long meal plans ("mess" subscriptions): a
// seller's monthly meals are listed, one is paid for up front through the
// payment gateway and the paid plan is recorded against the customer.
package monthly

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanDays is how many daily meals one plan covers. The plan price is the
// meal price times PlanDays.
const PlanDays = 30

const StatusActive = "active"

// Offer is a meal a seller sells as a monthly plan.
type Offer struct {
	MealID     int             `json:"mealId"`
	SellerID   int             `json:"sellerId"`
	SellerName string          `json:"sellerName"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
}

// PlanPrice is the amount charged for a full plan of this meal.
func (o Offer) PlanPrice() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(PlanDays))
}

// Menu is a seller with the meals they offer monthly.
type Menu struct {
	SellerID   int     `json:"sellerId"`
	SellerName string  `json:"sellerName"`
	Meals      []Offer `json:"meals"`
}

// Enrollment is a confirmed plan payment to be recorded.
type Enrollment struct {
	GatewayOrderID  string
	PaymentID       string
	CustomerID      int
	SellerID        int
	MealID          int
	MealName        string
	MealPlan        string
	DeliveryAddress string
	Price           decimal.Decimal
	CreatedAt       time.Time
}

// Subscription is a recorded plan as the customer sees it.
type Subscription struct {
	ID              int             `json:"id"`
	SellerID        int             `json:"sellerId"`
	SellerName      string          `json:"sellerName"`
	MealName        string          `json:"mealName"`
	MealPlan        string          `json:"mealPlan"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Price           decimal.Decimal `json:"price"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}
