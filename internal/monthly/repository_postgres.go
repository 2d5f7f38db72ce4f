package monthly

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wichananm65/homemeal-backend/internal/order"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	getSellerNameQuery = `SELECT name FROM sellers WHERE id = $1`

	listOffersQuery = `
		SELECT m.id, m.seller_id, s.name, m.name, m.price
		FROM meals m
		JOIN sellers s ON s.id = m.seller_id
		WHERE m.seller_id = $1 AND m.is_monthly AND m.is_enabled
		ORDER BY m.id`

	getOfferQuery = `
		SELECT m.id, m.seller_id, s.name, m.name, m.price
		FROM meals m
		JOIN sellers s ON s.id = m.seller_id
		WHERE m.id = $1 AND m.is_monthly AND m.is_enabled`

	insertSubscriptionQuery = `
		INSERT INTO monthly_subscriptions (gateway_order_id, payment_id, customer_id, seller_id, meal_id, meal_name, meal_plan, delivery_address, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (gateway_order_id) DO NOTHING`

	selectSubscriptionColumns = `
		SELECT ms.id, ms.seller_id, s.name, ms.meal_name, ms.meal_plan, ms.delivery_address,
		       ms.price, ms.status, ms.created_at
		FROM monthly_subscriptions ms
		JOIN sellers s ON s.id = ms.seller_id`

	getSubscriptionQuery   = selectSubscriptionColumns + ` WHERE ms.gateway_order_id = $1`
	listSubscriptionsQuery = selectSubscriptionColumns + ` WHERE ms.customer_id = $1 ORDER BY ms.created_at DESC, ms.id DESC`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) Menu(ctx context.Context, sellerID int) (Menu, error) {
	m := Menu{SellerID: sellerID, Meals: []Offer{}}
	if err := r.db.QueryRowContext(ctx, getSellerNameQuery, sellerID).Scan(&m.SellerName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Menu{}, ErrSellerNotFound
		}
		return Menu{}, err
	}

	rows, err := r.db.QueryContext(ctx, listOffersQuery, sellerID)
	if err != nil {
		return Menu{}, err
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return Menu{}, err
		}
		m.Meals = append(m.Meals, o)
	}
	if err := rows.Err(); err != nil {
		return Menu{}, err
	}
	return m, nil
}

func (r *PostgresRepository) Offer(ctx context.Context, mealID int) (Offer, error) {
	o, err := scanOffer(r.db.QueryRowContext(ctx, getOfferQuery, mealID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Offer{}, ErrOfferNotFound
		}
		return Offer{}, err
	}
	return o, nil
}

// Settle inserts the plan keyed by its gateway order. A conflicting row
// means an earlier confirmation recorded it; that row is returned.
func (r *PostgresRepository) Settle(ctx context.Context, e Enrollment) (Subscription, bool, error) {
	res, err := r.db.ExecContext(ctx, insertSubscriptionQuery,
		e.GatewayOrderID, e.PaymentID, e.CustomerID, e.SellerID, e.MealID, e.MealName,
		e.MealPlan, e.DeliveryAddress, e.Price, StatusActive, e.CreatedAt,
	)
	if err != nil {
		return Subscription{}, false, &order.PersistenceError{Op: "monthly subscription", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Subscription{}, false, &order.PersistenceError{Op: "monthly subscription", Err: err}
	}

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, getSubscriptionQuery, e.GatewayOrderID))
	if err != nil {
		return Subscription{}, false, &order.PersistenceError{Op: "read monthly subscription", Err: err}
	}
	return sub, n == 0, nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID int) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, listSubscriptionsQuery, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanOffer(row rowScanner) (Offer, error) {
	var o Offer
	err := row.Scan(&o.MealID, &o.SellerID, &o.SellerName, &o.Name, &o.Price)
	return o, err
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.SellerID, &s.SellerName, &s.MealName, &s.MealPlan, &s.DeliveryAddress,
		&s.Price, &s.Status, &s.CreatedAt)
	return s, err
}
