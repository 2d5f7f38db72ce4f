package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	selectCustomerColumns = `
		SELECT id, name, COALESCE(address, ''), email, password, is_referral, referrer_id,
		       COALESCE(coupon, ''), referral_rewarded, created_at
		FROM customers`

	getCustomerByIDQuery    = selectCustomerColumns + ` WHERE id = $1`
	getCustomerByEmailQuery = selectCustomerColumns + ` WHERE lower(email) = lower($1)`

	insertCustomerQuery = `
		INSERT INTO customers (name, address, email, password, is_referral, referrer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
)

const uniqueViolation = "23505"

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Customer, error) {
	return scanCustomer(r.db.QueryRowContext(ctx, getCustomerByIDQuery, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (Customer, error) {
	return scanCustomer(r.db.QueryRowContext(ctx, getCustomerByEmailQuery, email))
}

func (r *PostgresRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	var referrer sql.NullInt64
	if c.ReferrerID != nil {
		referrer = sql.NullInt64{Int64: int64(*c.ReferrerID), Valid: true}
	}
	err := r.db.QueryRowContext(ctx, insertCustomerQuery,
		c.Name, c.Address, c.Email, c.Password, c.IsReferral, referrer,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Customer{}, ErrEmailExists
		}
		return Customer{}, err
	}
	return c, nil
}

func scanCustomer(row rowScanner) (Customer, error) {
	var c Customer
	var referrer sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Email, &c.Password, &c.IsReferral, &referrer,
		&c.Coupon, &c.ReferralRewarded, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	if referrer.Valid {
		id := int(referrer.Int64)
		c.ReferrerID = &id
	}
	return c, nil
}
