package customer

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound           = errors.New("customer not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
)

type Repository interface {
	GetByID(ctx context.Context, id int) (Customer, error)
	GetByEmail(ctx context.Context, email string) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
}

type InMemoryRepository struct {
	mu        sync.RWMutex
	customers []Customer
	nextID    int
}

func NewInMemoryRepository(seed []Customer) *InMemoryRepository {
	repo := &InMemoryRepository{
		customers: make([]Customer, 0, len(seed)),
		nextID:    1,
	}

	maxID := 0
	for _, c := range seed {
		repo.customers = append(repo.customers, c)
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	repo.nextID = maxID + 1
	return repo
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return Customer{}, ErrNotFound
}

func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.customers {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return Customer{}, ErrNotFound
}

func (r *InMemoryRepository) Create(_ context.Context, c Customer) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return Customer{}, ErrEmailExists
		}
	}
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	r.customers = append(r.customers, c)
	return c, nil
}
