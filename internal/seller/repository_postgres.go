package seller

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	selectSellerColumns = `
		SELECT id, name, address, email, password, COALESCE(phone_number, ''), rating::float8, rating_count
		FROM sellers`

	getSellerByIDQuery    = selectSellerColumns + ` WHERE id = $1`
	getSellerByEmailQuery = selectSellerColumns + ` WHERE lower(email) = lower($1)`

	sellerAddressesQuery = `SELECT id, address FROM sellers WHERE id = ANY($1::int[])`

	getBankDetailsQuery = `
		SELECT seller_id, COALESCE(bank_name, ''), COALESCE(account_holder_name, ''), account_number,
		       ifsc_code, COALESCE(bank_branch, ''), COALESCE(contact_number, '')
		FROM bank_details
		WHERE seller_id = $1`

	// the average is kept to one decimal place
	addRatingQuery = `
		UPDATE sellers
		SET rating = ROUND(((rating * rating_count) + $2::numeric) / (rating_count + 1), 1),
		    rating_count = rating_count + 1
		WHERE id = $1
		RETURNING rating::float8, rating_count`

	upsertBankDetailsQuery = `
		INSERT INTO bank_details (seller_id, bank_name, account_holder_name, account_number, ifsc_code, bank_branch, contact_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (seller_id) DO UPDATE SET
			bank_name = EXCLUDED.bank_name,
			account_holder_name = EXCLUDED.account_holder_name,
			account_number = EXCLUDED.account_number,
			ifsc_code = EXCLUDED.ifsc_code,
			bank_branch = EXCLUDED.bank_branch,
			contact_number = EXCLUDED.contact_number`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Seller, error) {
	return scanSeller(r.db.QueryRowContext(ctx, getSellerByIDQuery, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (Seller, error) {
	return scanSeller(r.db.QueryRowContext(ctx, getSellerByEmailQuery, email))
}

func (r *PostgresRepository) AddressesByIDs(ctx context.Context, ids []int) (map[int]string, error) {
	out := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, sellerAddressesQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var addr string
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, err
		}
		out[id] = addr
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetBankDetails(ctx context.Context, sellerID int) (BankDetails, error) {
	var b BankDetails
	err := r.db.QueryRowContext(ctx, getBankDetailsQuery, sellerID).Scan(
		&b.SellerID, &b.BankName, &b.AccountHolderName, &b.AccountNumber, &b.IFSCCode, &b.BankBranch, &b.ContactNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BankDetails{}, ErrBankDetailsNotFound
		}
		return BankDetails{}, err
	}
	return b, nil
}

func (r *PostgresRepository) UpsertBankDetails(ctx context.Context, b BankDetails) (BankDetails, error) {
	_, err := r.db.ExecContext(ctx, upsertBankDetailsQuery,
		b.SellerID, b.BankName, b.AccountHolderName, b.AccountNumber, b.IFSCCode, b.BankBranch, b.ContactNumber)
	if err != nil {
		return BankDetails{}, err
	}
	return b, nil
}

func (r *PostgresRepository) AddRating(ctx context.Context, sellerID int, rating float64) (Rating, error) {
	out := Rating{SellerID: sellerID}
	err := r.db.QueryRowContext(ctx, addRatingQuery, sellerID, rating).Scan(&out.Rating, &out.Count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rating{}, ErrNotFound
		}
		return Rating{}, err
	}
	return out, nil
}

func scanSeller(row rowScanner) (Seller, error) {
	var s Seller
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Email, &s.Password, &s.PhoneNumber, &s.Rating, &s.RatingCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Seller{}, ErrNotFound
		}
		return Seller{}, err
	}
	return s, nil
}
