package delivery

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/geo"
)

var ErrNoSellers = errors.New("no sellers to deliver from")

var (
	nearFee = decimal.NewFromInt(50)
	midFee  = decimal.NewFromInt(100)
	farFee  = decimal.NewFromInt(150)
)

// FeeForDistance maps a driving distance in meters to the delivery fee.
func FeeForDistance(meters float64) decimal.Decimal {
	switch {
	case meters <= 5000:
		return nearFee
	case meters <= 10000:
		return midFee
	default:
		return farFee
	}
}

// Router is the subset of the geo client the engine needs.
type Router interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
	Distance(ctx context.Context, from, to geo.Point) (float64, error)
}

type Quote struct {
	SellerID        int             `json:"sellerId,omitempty"`
	SellerAddress   string          `json:"sellerAddress"`
	CustomerAddress string          `json:"customerAddress"`
	DistanceMeters  float64         `json:"distanceMeters"`
	Fee             decimal.Decimal `json:"fee"`
}

type SellerStop struct {
	SellerID int
	Address  string
}

type Breakdown struct {
	Quotes []Quote         `json:"quotes"`
	Total  decimal.Decimal `json:"total"`
}

// Fees returns the fee per seller id.
func (b Breakdown) Fees() map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(b.Quotes))
	for _, q := range b.Quotes {
		out[q.SellerID] = q.Fee
	}
	return out
}

type Engine struct {
	router Router
}

func NewEngine(router Router) *Engine {
	return &Engine{router: router}
}

// Quote prices a single delivery. Geocoding and routing errors are returned
// unchanged so callers can tell them apart.
func (e *Engine) Quote(ctx context.Context, sellerAddress, customerAddress string) (Quote, error) {
	to, err := e.router.Geocode(ctx, customerAddress)
	if err != nil {
		return Quote{}, err
	}
	return e.quoteTo(ctx, sellerAddress, customerAddress, to)
}

func (e *Engine) quoteTo(ctx context.Context, sellerAddress, customerAddress string, to geo.Point) (Quote, error) {
	from, err := e.router.Geocode(ctx, sellerAddress)
	if err != nil {
		return Quote{}, err
	}
	meters, err := e.router.Distance(ctx, from, to)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		SellerAddress:   sellerAddress,
		CustomerAddress: customerAddress,
		DistanceMeters:  meters,
		Fee:             FeeForDistance(meters),
	}, nil
}

// QuoteSellers prices one delivery per distinct seller and sums the fees.
// The first failure aborts the whole breakdown.
func (e *Engine) QuoteSellers(ctx context.Context, stops []SellerStop, customerAddress string) (Breakdown, error) {
	if len(stops) == 0 {
		return Breakdown{}, ErrNoSellers
	}
	to, err := e.router.Geocode(ctx, customerAddress)
	if err != nil {
		return Breakdown{}, err
	}

	seen := make(map[int]bool, len(stops))
	out := Breakdown{Total: decimal.Zero}
	for _, s := range stops {
		if s.SellerID != 0 {
			if seen[s.SellerID] {
				continue
			}
			seen[s.SellerID] = true
		}
		q, err := e.quoteTo(ctx, s.Address, customerAddress, to)
		if err != nil {
			return Breakdown{}, err
		}
		q.SellerID = s.SellerID
		out.Quotes = append(out.Quotes, q)
		out.Total = out.Total.Add(q.Fee)
	}
	return out, nil
}
