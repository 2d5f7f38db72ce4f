package seller

import (
	"context"
	"math"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BranchLookup resolves an IFSC code to a branch name.
type BranchLookup interface {
	BranchForIFSC(ctx context.Context, code string) (string, error)
}

type Service struct {
	repo     Repository
	branches BranchLookup
}

func NewService(repo Repository, branches BranchLookup) *Service {
	return &Service{repo: repo, branches: branches}
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (Seller, error) {
	sl, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return Seller{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(sl.Password), []byte(password)) != nil {
		return Seller{}, ErrInvalidCredentials
	}
	return sl, nil
}

func (s *Service) Addresses(ctx context.Context, ids []int) (map[int]string, error) {
	return s.repo.AddressesByIDs(ctx, ids)
}

func (s *Service) BankDetails(ctx context.Context, sellerID int) (BankDetails, error) {
	return s.repo.GetBankDetails(ctx, sellerID)
}

// SaveBankDetails validates and stores the seller's bank details. A missing
// branch is filled from the IFSC directory when it can be resolved.
func (s *Service) SaveBankDetails(ctx context.Context, b BankDetails) (BankDetails, error) {
	b = b.Normalize()
	if err := b.Validate(); err != nil {
		return BankDetails{}, err
	}
	if b.BankBranch == "" && s.branches != nil {
		if branch, err := s.branches.BranchForIFSC(ctx, b.IFSCCode); err == nil {
			b.BankBranch = branch
		}
	}
	return s.repo.UpsertBankDetails(ctx, b)
}

// Rate records a customer's star rating for the seller.
func (s *Service) Rate(ctx context.Context, sellerID int, rating float64) (Rating, error) {
	if math.IsNaN(rating) || rating < 1 || rating > 5 {
		return Rating{}, ErrInvalidRating
	}
	return s.repo.AddRating(ctx, sellerID, rating)
}

func (s *Service) Branch(ctx context.Context, ifsc string) (string, error) {
	return s.branches.BranchForIFSC(ctx, ifsc)
}
