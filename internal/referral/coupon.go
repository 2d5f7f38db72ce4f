package referral

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	couponAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	CouponLength   = 6
)

// GenerateCoupon returns a random alphanumeric code of CouponLength characters.
func GenerateCoupon() string {
	var b strings.Builder
	b.Grow(CouponLength)
	for i := 0; i < CouponLength; i++ {
		b.WriteByte(couponAlphabet[rand.Intn(len(couponAlphabet))])
	}
	return b.String()
}

// Link is the sign-up URL a customer shares to refer others.
func Link(baseURL string, customerID int) string {
	return fmt.Sprintf("%s/register/customer?ref=%d", strings.TrimRight(baseURL, "/"), customerID)
}
