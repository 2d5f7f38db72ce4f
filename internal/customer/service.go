package customer

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrMissingFields = errors.New("missing required fields")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByID(ctx context.Context, id int) (Customer, error) {
	return s.repo.GetByID(ctx, id)
}

// Register creates a customer. A referrer id that does not resolve to an
// existing customer is dropped and the sign-up proceeds unreferred.
func (s *Service) Register(ctx context.Context, c Customer, referrerID int) (Customer, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" || c.Email == "" || c.Password == "" {
		return Customer{}, ErrMissingFields
	}
	if _, err := s.repo.GetByEmail(ctx, c.Email); err == nil {
		return Customer{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return Customer{}, err
	}

	c.IsReferral = false
	c.ReferrerID = nil
	if referrerID > 0 {
		if _, err := s.repo.GetByID(ctx, referrerID); err == nil {
			c.IsReferral = true
			c.ReferrerID = &referrerID
		} else if !errors.Is(err, ErrNotFound) {
			return Customer{}, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return Customer{}, err
	}
	c.Password = string(hashed)
	return s.repo.Create(ctx, c)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (Customer, error) {
	c, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return Customer{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) != nil {
		return Customer{}, ErrInvalidCredentials
	}
	return c, nil
}

// Address returns the customer's profile address, used when checkout has
// no explicit delivery address.
func (s *Service) Address(ctx context.Context, id int) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Address, nil
}
