package meal

import (
	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/cart"
)

// Meal maps to the `meals` table joined with its seller.
type Meal struct {
	ID            int             `json:"mealId"`
	SellerID      int             `json:"sellerId"`
	SellerName    string          `json:"sellerName"`
	SellerAddress string          `json:"-"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Contents      string          `json:"contents"`
	PrepTime      string          `json:"prepTime"`
	ImageURL      string          `json:"imageUrl"`
	IsEnabled     bool            `json:"isEnabled"`
}

// CartLine snapshots the meal into a cart line. Price comes from the
// catalog, never from the client.
func (m Meal) CartLine() cart.Line {
	return cart.Line{
		MealID:     m.ID,
		Name:       m.Name,
		Price:      m.Price,
		Contents:   m.Contents,
		PrepTime:   m.PrepTime,
		SellerID:   m.SellerID,
		SellerName: m.SellerName,
		ImageRef:   m.ImageURL,
	}
}
