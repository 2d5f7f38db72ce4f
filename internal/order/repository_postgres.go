package order

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	insertSettlementQuery = `
		INSERT INTO payment_settlements (gateway_order_id, payment_id, customer_id, amount_minor, settled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (gateway_order_id) DO NOTHING`

	countOrdersQuery = `SELECT COUNT(*) FROM order_history WHERE customer_id = $1`

	insertOrderQuery = `
		INSERT INTO order_history (customer_id, seller_id, meal_id, meal_name, order_amount, order_status, order_date, delivery_address, gateway_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	// flips the flag at most once per referred customer
	markRewardedQuery = `
		UPDATE customers SET referral_rewarded = TRUE
		WHERE id = $1 AND referral_rewarded = FALSE AND referrer_id IS NOT NULL
		RETURNING referrer_id`

	setCouponQuery = `UPDATE customers SET coupon = $1 WHERE id = $2`

	listOrdersQuery = `
		SELECT o.id, o.customer_id, o.seller_id, COALESCE(o.meal_id, 0), o.meal_name, o.order_amount,
		       o.order_status, o.order_date, o.delivery_address, COALESCE(o.gateway_order_id, ''),
		       COALESCE(EXTRACT(EPOCH FROM m.prep_time), 0)::float8
		FROM order_history o
		LEFT JOIN meals m ON m.id = o.meal_id
		WHERE o.customer_id = $1
		ORDER BY o.order_date DESC, o.id DESC`
)

// Settle runs the settlement marker, the order rows and the referral reward
// in one transaction. A conflicting marker means an earlier confirmation
// already did all of it.
func (r *PostgresRepository) Settle(ctx context.Context, s Settlement, newCoupon func() string) (SettleResult, error) {
	if len(s.Lines) == 0 {
		return SettleResult{}, ErrEmptySettlement
	}
	if s.SettledAt.IsZero() {
		s.SettledAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SettleResult{}, &PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertSettlementQuery, s.GatewayOrderID, s.PaymentID, s.CustomerID, s.AmountMinor, s.SettledAt)
	if err != nil {
		return SettleResult{}, &PersistenceError{Op: "settlement", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return SettleResult{}, &PersistenceError{Op: "settlement", Err: err}
	}
	if n == 0 {
		return SettleResult{AlreadySettled: true}, nil
	}

	var prior int
	if err := tx.QueryRowContext(ctx, countOrdersQuery, s.CustomerID).Scan(&prior); err != nil {
		return SettleResult{}, &PersistenceError{Op: "count orders", Err: err}
	}

	out := SettleResult{FirstOrder: prior == 0}
	for _, rec := range records(s) {
		err := tx.QueryRowContext(ctx, insertOrderQuery,
			rec.CustomerID, rec.SellerID, rec.MealID, rec.MealName, rec.Amount,
			rec.Status, rec.OrderDate, rec.DeliveryAddress, rec.GatewayOrderID,
		).Scan(&rec.ID)
		if err != nil {
			return SettleResult{}, &PersistenceError{Op: "insert order", Err: err}
		}
		out.Orders = append(out.Orders, rec)
	}

	if out.FirstOrder {
		var referrerID int
		err := tx.QueryRowContext(ctx, markRewardedQuery, s.CustomerID).Scan(&referrerID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return SettleResult{}, &PersistenceError{Op: "mark rewarded", Err: err}
		default:
			code := newCoupon()
			if _, err := tx.ExecContext(ctx, setCouponQuery, code, referrerID); err != nil {
				return SettleResult{}, &PersistenceError{Op: "set coupon", Err: err}
			}
			out.Reward = &Reward{ReferrerID: referrerID, Coupon: code}
		}
	}

	if err := tx.Commit(); err != nil {
		return SettleResult{}, &PersistenceError{Op: "commit", Err: err}
	}
	return out, nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID int) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, listOrdersQuery, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var prepSeconds float64
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.SellerID, &e.MealID, &e.MealName, &e.Amount,
			&e.Status, &e.OrderDate, &e.DeliveryAddress, &e.GatewayOrderID, &prepSeconds); err != nil {
			return nil, err
		}
		e.PrepTime = time.Duration(prepSeconds * float64(time.Second))
		out = append(out, e)
	}
	return out, rows.Err()
}
