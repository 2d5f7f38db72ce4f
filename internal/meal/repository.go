package meal

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound    = errors.New("meal not found")
	ErrUnavailable = errors.New("meal is not available")
)

type Repository interface {
	GetByID(ctx context.Context, id int) (Meal, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu    sync.RWMutex
	meals map[int]Meal
}

func NewInMemoryRepository(seed []Meal) *InMemoryRepository {
	r := &InMemoryRepository{meals: make(map[int]Meal, len(seed))}
	for _, m := range seed {
		r.meals[m.ID] = m
	}
	return r
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int) (Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.meals[id]
	if !ok {
		return Meal{}, ErrNotFound
	}
	return m, nil
}
