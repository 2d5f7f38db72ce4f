package auth

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"

	// ContextKey is where the jwt middleware stores the parsed token.
	ContextKey = "user"

	claimSubject = "sub_id"
	claimRole    = "role"
)

// IssueToken signs an HS256 token for a customer or seller.
func IssueToken(secret string, id int, email, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		claimSubject: id,
		claimRole:    role,
		"email":      email,
		"exp":        time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Middleware rejects requests without a valid bearer token.
func Middleware(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: []byte(secret),
		ContextKey: ContextKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	})
}

// SubjectFromCtx extracts the subject id from the JWT stored in locals and
// checks that the token was issued for the given role.
func SubjectFromCtx(c *fiber.Ctx, role string) (int, error) {
	tok, ok := c.Locals(ContextKey).(*jwt.Token)
	if !ok || tok == nil {
		return 0, fiber.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	if r, _ := claims[claimRole].(string); r != role {
		return 0, fiber.ErrUnauthorized
	}

	var id int
	switch v := claims[claimSubject].(type) {
	case float64:
		id = int(v)
	case int:
		id = v
	case int64:
		id = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fiber.ErrUnauthorized
		}
		id = n
	default:
		return 0, fiber.ErrUnauthorized
	}
	if id <= 0 {
		return 0, fiber.ErrUnauthorized
	}
	return id, nil
}

// CustomerID is SubjectFromCtx for customer tokens.
func CustomerID(c *fiber.Ctx) (int, error) {
	return SubjectFromCtx(c, RoleCustomer)
}

// SellerID is SubjectFromCtx for seller tokens.
func SellerID(c *fiber.Ctx) (int, error) {
	return SubjectFromCtx(c, RoleSeller)
}

// PlantToken stores an unsigned token carrying the given subject, the way
// the jwt middleware would after verifying one. Used by handler tests.
func PlantToken(c *fiber.Ctx, id int, role string) {
	claims := jwt.MapClaims{claimSubject: id, claimRole: role}
	c.Locals(ContextKey, &jwt.Token{Claims: claims})
}
