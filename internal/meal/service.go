package meal

import (
	"context"

	"github.com/wichananm65/homemeal-backend/internal/cart"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Orderable returns the meal if it exists and the seller has it enabled.
func (s *Service) Orderable(ctx context.Context, id int) (Meal, error) {
	if id <= 0 {
		return Meal{}, ErrNotFound
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Meal{}, err
	}
	if !m.IsEnabled {
		return Meal{}, ErrUnavailable
	}
	return m, nil
}

// LineFor satisfies cart.MealLookup.
func (s *Service) LineFor(ctx context.Context, id int) (cart.Line, error) {
	m, err := s.Orderable(ctx, id)
	if err != nil {
		return cart.Line{}, err
	}
	return m.CartLine(), nil
}
