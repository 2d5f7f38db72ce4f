package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fsession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/homemeal-backend/internal/cart"
)

const (
	CookieName = "homemeal_session"
	dataKey    = "checkout"
)

var ErrCorruptSession = errors.New("session payload is unreadable")

// State is the position of a checkout attempt in its lifecycle.
type State string

const (
	StateCartReady            State = "CartReady"
	StateQuoteComputed        State = "QuoteComputed"
	StateIntentCreated        State = "IntentCreated"
	StateAwaitingConfirmation State = "AwaitingExternalConfirmation"
	StateConfirmed            State = "Confirmed"
	StateFailed               State = "Failed"
)

// Draft is the order snapshot taken when the payment intent was created.
// Confirmation settles exactly these lines, not whatever the cart holds by then.
type Draft struct {
	IntentID        string                  `json:"intentId"`
	AmountMinor     int64                   `json:"amountMinor"`
	Currency        string                  `json:"currency"`
	Receipt         string                  `json:"receipt"`
	IdempotencyKey  string                  `json:"idempotencyKey"`
	CustomerID      int                     `json:"customerId"`
	Lines           []cart.Line             `json:"lines"`
	DeliveryAddress string                  `json:"deliveryAddress"`
	SellerFees      map[int]decimal.Decimal `json:"sellerFees"`
	Subtotal        decimal.Decimal         `json:"subtotal"`
	DeliveryTotal   decimal.Decimal         `json:"deliveryTotal"`
	Total           decimal.Decimal         `json:"total"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// PlanDraft is a monthly-plan payment awaiting confirmation. It lives beside
// the cart draft so a plan purchase never freezes the cart.
type PlanDraft struct {
	IntentID        string          `json:"intentId"`
	AmountMinor     int64           `json:"amountMinor"`
	Currency        string          `json:"currency"`
	Receipt         string          `json:"receipt"`
	SellerID        int             `json:"sellerId"`
	MealID          int             `json:"mealId"`
	MealName        string          `json:"mealName"`
	MealPlan        string          `json:"mealPlan"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CheckoutSession is everything the checkout flow keeps between requests.
type CheckoutSession struct {
	CustomerID      int         `json:"customerId"`
	Cart            []cart.Line `json:"cart"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
	State           State       `json:"state"`
	Draft           *Draft      `json:"draft,omitempty"`
	Plan            *PlanDraft  `json:"plan,omitempty"`
	LastError       string      `json:"lastError,omitempty"`
}

// Pending reports whether a payment intent is outstanding. A failed
// confirmation keeps its draft so it can be retried or cancelled.
func (cs *CheckoutSession) Pending() bool {
	return cs.Draft != nil && (cs.State == StateAwaitingConfirmation || cs.State == StateFailed)
}

// Reset drops cart and draft, keeping the owner.
func (cs *CheckoutSession) Reset() {
	cs.Cart = cart.Clear()
	cs.Draft = nil
	cs.State = StateCartReady
	cs.LastError = ""
}

// Store loads and saves CheckoutSession values through the fiber session
// middleware. The value is serialized as JSON under a single key.
type Store struct {
	store *fsession.Store
}

type Config struct {
	Storage    fiber.Storage
	Expiration time.Duration
	Secure     bool
}

func NewStore(cfg Config) *Store {
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &Store{store: fsession.New(fsession.Config{
		Storage:        cfg.Storage,
		Expiration:     cfg.Expiration,
		KeyLookup:      "cookie:" + CookieName,
		CookieHTTPOnly: true,
		CookieSecure:   cfg.Secure,
		CookieSameSite: "Lax",
	})}
}

// Handle is a loaded session bound to one request.
type Handle struct {
	sess *fsession.Session
	Data *CheckoutSession
}

// Load reads the customer's CheckoutSession. A session owned by another
// customer (shared browser) is discarded rather than reused.
func (s *Store) Load(c *fiber.Ctx, customerID int) (*Handle, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	data := &CheckoutSession{CustomerID: customerID, Cart: cart.Clear(), State: StateCartReady}
	if raw, ok := sess.Get(dataKey).([]byte); ok && len(raw) > 0 {
		var stored CheckoutSession
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		if stored.CustomerID == customerID {
			data = &stored
			if data.Cart == nil {
				data.Cart = cart.Clear()
			}
			if data.State == "" {
				data.State = StateCartReady
			}
		}
	}
	return &Handle{sess: sess, Data: data}, nil
}

// Save writes the value back and refreshes the cookie.
func (h *Handle) Save() error {
	raw, err := json.Marshal(h.Data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	h.sess.Set(dataKey, raw)
	if err := h.sess.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Open satisfies cart.SessionStore.
func (s *Store) Open(c *fiber.Ctx, customerID int) (cart.SessionHandle, error) {
	h, err := s.Load(c, customerID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) Lines() []cart.Line {
	return h.Data.Cart
}

func (h *Handle) SetLines(lines []cart.Line) {
	h.Data.Cart = lines
}

func (h *Handle) Pending() bool {
	return h.Data.Pending()
}
