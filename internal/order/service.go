package order

import (
	"context"
	"errors"
	"time"
)

// Service provides business logic for orders.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: time.Now}
}

// History returns the customer's orders with their display status.
func (s *Service) History(ctx context.Context, customerID int) ([]HistoryEntry, error) {
	if customerID <= 0 {
		return nil, errors.New("invalid customer")
	}
	entries, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range entries {
		entries[i].DisplayStatus = DisplayStatus(entries[i].OrderDate, entries[i].PrepTime, now)
	}
	return entries, nil
}
