package customer

import "time"

type Customer struct {
	ID               int       `json:"customerId"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Email            string    `json:"email"`
	Password         string    `json:"password,omitempty"`
	IsReferral       bool      `json:"isReferral"`
	ReferrerID       *int      `json:"referrerId,omitempty"`
	Coupon           string    `json:"coupon,omitempty"`
	ReferralRewarded bool      `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

func sanitize(c Customer) Customer {
	c.Password = ""
	return c
}
