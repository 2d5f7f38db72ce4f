package seller

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
)

var (
	ErrNotFound            = errors.New("seller not found")
	ErrBankDetailsNotFound = errors.New("bank details not found")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
)

type Repository interface {
	GetByID(ctx context.Context, id int) (Seller, error)
	GetByEmail(ctx context.Context, email string) (Seller, error)
	// AddressesByIDs returns the address of every seller found; missing
	// ids are simply absent from the map.
	AddressesByIDs(ctx context.Context, ids []int) (map[int]string, error)
	GetBankDetails(ctx context.Context, sellerID int) (BankDetails, error)
	UpsertBankDetails(ctx context.Context, b BankDetails) (BankDetails, error)
	// AddRating folds one rating into the seller's running average.
	AddRating(ctx context.Context, sellerID int, rating float64) (Rating, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu      sync.RWMutex
	sellers map[int]Seller
	banks   map[int]BankDetails
}

func NewInMemoryRepository(sellers []Seller, banks []BankDetails) *InMemoryRepository {
	r := &InMemoryRepository{
		sellers: make(map[int]Seller, len(sellers)),
		banks:   make(map[int]BankDetails, len(banks)),
	}
	for _, s := range sellers {
		r.sellers[s.ID] = s
	}
	for _, b := range banks {
		r.banks[b.SellerID] = b
	}
	return r
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int) (Seller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sellers[id]
	if !ok {
		return Seller{}, ErrNotFound
	}
	return s, nil
}

func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (Seller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sellers {
		if strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return Seller{}, ErrNotFound
}

func (r *InMemoryRepository) AddressesByIDs(_ context.Context, ids []int) (map[int]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]string, len(ids))
	for _, id := range ids {
		if s, ok := r.sellers[id]; ok {
			out[id] = s.Address
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetBankDetails(_ context.Context, sellerID int) (BankDetails, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[sellerID]
	if !ok {
		return BankDetails{}, ErrBankDetailsNotFound
	}
	return b, nil
}

func (r *InMemoryRepository) UpsertBankDetails(_ context.Context, b BankDetails) (BankDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sellers[b.SellerID]; !ok {
		return BankDetails{}, ErrNotFound
	}
	r.banks[b.SellerID] = b
	return b, nil
}

func (r *InMemoryRepository) AddRating(_ context.Context, sellerID int, rating float64) (Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sellers[sellerID]
	if !ok {
		return Rating{}, ErrNotFound
	}
	avg := (s.Rating*float64(s.RatingCount) + rating) / float64(s.RatingCount+1)
	s.Rating = math.Round(avg*10) / 10
	s.RatingCount++
	r.sellers[sellerID] = s
	return Rating{SellerID: sellerID, Rating: s.Rating, Count: s.RatingCount}, nil
}
