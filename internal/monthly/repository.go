package monthly

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrSellerNotFound = errors.New("seller not found")
	ErrOfferNotFound  = errors.New("meal is not offered as a monthly plan")
)

// Repository defines persistence operations for monthly plans.
type Repository interface {
	// Menu returns the seller's enabled monthly meals.
	Menu(ctx context.Context, sellerID int) (Menu, error)
	// Offer returns one enabled monthly meal.
	Offer(ctx context.Context, mealID int) (Offer, error)
	// Settle records a paid plan once per gateway order. The boolean is true
	// when an earlier confirmation already recorded it.
	Settle(ctx context.Context, e Enrollment) (Subscription, bool, error)
	// ListByCustomer returns the customer's plans, newest first.
	ListByCustomer(ctx context.Context, customerID int) ([]Subscription, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu      sync.Mutex
	nextID  int
	sellers map[int]string
	offers  map[int]Offer
	settled map[string]int
	subs    []memorySub
}

type memorySub struct {
	customerID int
	sub        Subscription
}

// NewInMemoryRepository seeds seller names and the monthly offers. Offer
// seller names are filled from sellers.
func NewInMemoryRepository(sellers map[int]string, offers []Offer) *InMemoryRepository {
	r := &InMemoryRepository{
		nextID:  1,
		sellers: map[int]string{},
		offers:  make(map[int]Offer, len(offers)),
		settled: map[string]int{},
	}
	for id, name := range sellers {
		r.sellers[id] = name
	}
	for _, o := range offers {
		o.SellerName = r.sellers[o.SellerID]
		r.offers[o.MealID] = o
	}
	return r
}

func (r *InMemoryRepository) Menu(_ context.Context, sellerID int) (Menu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.sellers[sellerID]
	if !ok {
		return Menu{}, ErrSellerNotFound
	}
	m := Menu{SellerID: sellerID, SellerName: name, Meals: []Offer{}}
	for _, o := range r.offers {
		if o.SellerID == sellerID {
			m.Meals = append(m.Meals, o)
		}
	}
	sort.Slice(m.Meals, func(i, j int) bool { return m.Meals[i].MealID < m.Meals[j].MealID })
	return m, nil
}

func (r *InMemoryRepository) Offer(_ context.Context, mealID int) (Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[mealID]
	if !ok {
		return Offer{}, ErrOfferNotFound
	}
	return o, nil
}

func (r *InMemoryRepository) Settle(_ context.Context, e Enrollment) (Subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.settled[e.GatewayOrderID]; ok {
		return r.subs[idx].sub, true, nil
	}
	sub := Subscription{
		ID:              r.nextID,
		SellerID:        e.SellerID,
		SellerName:      r.sellers[e.SellerID],
		MealName:        e.MealName,
		MealPlan:        e.MealPlan,
		DeliveryAddress: e.DeliveryAddress,
		Price:           e.Price,
		Status:          StatusActive,
		CreatedAt:       e.CreatedAt,
	}
	r.nextID++
	r.settled[e.GatewayOrderID] = len(r.subs)
	r.subs = append(r.subs, memorySub{customerID: e.CustomerID, sub: sub})
	return sub, false, nil
}

func (r *InMemoryRepository) ListByCustomer(_ context.Context, customerID int) ([]Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, 0)
	for _, s := range r.subs {
		if s.customerID == customerID {
			out = append(out, s.sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
