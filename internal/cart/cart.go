package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingMealID = errors.New("mealId is required")
	ErrInvalidPrice  = errors.New("price must be a non-negative number")
	ErrEmptyCart     = errors.New("cart is empty")
)

// Line is one meal selection held in the customer's session.
type Line struct {
	MealID     int             `json:"mealId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Contents   string          `json:"contents,omitempty"`
	PrepTime   string          `json:"prepTime,omitempty"`
	SellerID   int             `json:"sellerId"`
	SellerName string          `json:"sellerName,omitempty"`
	ImageRef   string          `json:"imageRef,omitempty"`
}

// Validate rejects lines without a meal id or with a negative price.
func (l Line) Validate() error {
	if l.MealID <= 0 {
		return ErrMissingMealID
	}
	if l.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// Add appends line unless the cart already holds the same meal. The bool
// reports whether the cart changed. Every add path goes through here so the
// dedup policy is the same everywhere.
func Add(lines []Line, line Line) ([]Line, bool, error) {
	if err := line.Validate(); err != nil {
		return lines, false, err
	}
	for _, l := range lines {
		if l.MealID == line.MealID {
			return lines, false, nil
		}
	}
	out := make([]Line, 0, len(lines)+1)
	out = append(out, lines...)
	return append(out, line), true, nil
}

// Remove drops every line for mealID.
func Remove(lines []Line, mealID int) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.MealID != mealID {
			out = append(out, l)
		}
	}
	return out
}

func Clear() []Line {
	return []Line{}
}

func Count(lines []Line) int {
	return len(lines)
}

// Subtotal is the sum of line prices, delivery excluded.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price)
	}
	return total
}

// SellerIDs lists distinct sellers in first-seen order.
func SellerIDs(lines []Line) []int {
	seen := make(map[int]struct{}, len(lines))
	out := make([]int, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.SellerID]; ok {
			continue
		}
		seen[l.SellerID] = struct{}{}
		out = append(out, l.SellerID)
	}
	return out
}

// SellerSubtotals sums line prices per seller.
func SellerSubtotals(lines []Line) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, l := range lines {
		out[l.SellerID] = out[l.SellerID].Add(l.Price)
	}
	return out
}

// Validate checks a cart is ready for checkout.
func Validate(lines []Line) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}
