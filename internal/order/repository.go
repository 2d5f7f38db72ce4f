package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrEmptySettlement = errors.New("settlement has no order lines")

// PersistenceError wraps a failed write; the whole batch was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Repository defines persistence operations for orders.
type Repository interface {
	// Settle records a confirmed payment and its order rows atomically.
	// newCoupon is called only when a referral reward is granted.
	Settle(ctx context.Context, s Settlement, newCoupon func() string) (SettleResult, error)
	// ListByCustomer returns the customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID int) ([]HistoryEntry, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu        sync.Mutex
	nextID    int
	settled   map[string]bool
	orders    []Record
	referrers map[int]int
	rewarded  map[int]bool
	coupons   map[int]string
	prepTimes map[int]time.Duration
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID:    1,
		settled:   map[string]bool{},
		referrers: map[int]int{},
		rewarded:  map[int]bool{},
		coupons:   map[int]string{},
		prepTimes: map[int]time.Duration{},
	}
}

// SetReferrer records that customerID signed up through referrerID.
func (r *InMemoryRepository) SetReferrer(customerID, referrerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrers[customerID] = referrerID
}

func (r *InMemoryRepository) SetPrepTime(mealID int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepTimes[mealID] = d
}

// Coupon returns the coupon held by a customer, if any.
func (r *InMemoryRepository) Coupon(customerID int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coupons[customerID]
}

// Orders returns a copy of every stored record.
func (r *InMemoryRepository) Orders() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.orders...)
}

func (r *InMemoryRepository) Settle(_ context.Context, s Settlement, newCoupon func() string) (SettleResult, error) {
	if len(s.Lines) == 0 {
		return SettleResult{}, ErrEmptySettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled[s.GatewayOrderID] {
		return SettleResult{AlreadySettled: true}, nil
	}
	r.settled[s.GatewayOrderID] = true

	prior := 0
	for _, o := range r.orders {
		if o.CustomerID == s.CustomerID {
			prior++
		}
	}

	res := SettleResult{FirstOrder: prior == 0}
	for _, rec := range records(s) {
		rec.ID = r.nextID
		r.nextID++
		r.orders = append(r.orders, rec)
		res.Orders = append(res.Orders, rec)
	}

	if res.FirstOrder {
		if ref, ok := r.referrers[s.CustomerID]; ok && !r.rewarded[s.CustomerID] {
			r.rewarded[s.CustomerID] = true
			code := newCoupon()
			r.coupons[ref] = code
			res.Reward = &Reward{ReferrerID: ref, Coupon: code}
		}
	}
	return res, nil
}

func (r *InMemoryRepository) ListByCustomer(_ context.Context, customerID int) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]HistoryEntry, 0)
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, HistoryEntry{Record: o, PrepTime: r.prepTimes[o.MealID]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}
