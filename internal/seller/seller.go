package seller

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrMissingAccount = errors.New("account number is required")
	ErrInvalidIFSC    = errors.New("IFSC code is invalid")
)

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

type Seller struct {
	ID          int     `json:"sellerId"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Email       string  `json:"email"`
	Password    string  `json:"password,omitempty"`
	PhoneNumber string  `json:"phoneNumber,omitempty"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"ratingCount"`
}

// Rating is a seller's running average after a rating was added.
type Rating struct {
	SellerID int     `json:"sellerId"`
	Rating   float64 `json:"rating"`
	Count    int     `json:"ratingCount"`
}

// BankDetails is where a seller's payouts go.
type BankDetails struct {
	SellerID          int    `json:"sellerId"`
	BankName          string `json:"bankName"`
	AccountHolderName string `json:"accHolderName"`
	AccountNumber     string `json:"accNumber"`
	IFSCCode          string `json:"IFSC"`
	BankBranch        string `json:"bankBranch"`
	ContactNumber     string `json:"contact"`
}

// Normalize trims input and upper-cases the IFSC code.
func (b BankDetails) Normalize() BankDetails {
	b.BankName = strings.TrimSpace(b.BankName)
	b.AccountHolderName = strings.TrimSpace(b.AccountHolderName)
	b.AccountNumber = strings.TrimSpace(b.AccountNumber)
	b.IFSCCode = strings.ToUpper(strings.TrimSpace(b.IFSCCode))
	b.BankBranch = strings.TrimSpace(b.BankBranch)
	b.ContactNumber = strings.TrimSpace(b.ContactNumber)
	return b
}

func (b BankDetails) Validate() error {
	if b.AccountNumber == "" {
		return ErrMissingAccount
	}
	if !ifscPattern.MatchString(b.IFSCCode) {
		return ErrInvalidIFSC
	}
	return nil
}

func sanitize(s Seller) Seller {
	s.Password = ""
	return s
}
