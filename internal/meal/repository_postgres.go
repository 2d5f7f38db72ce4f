package meal

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepository struct {
	db *sql.DB
}

const getMealQuery = `
	SELECT m.id, m.seller_id, COALESCE(m.seller_name, s.name), s.address, m.name, m.price,
	       COALESCE(m.contents, ''), m.prep_time::text, COALESCE(m.image_url, ''), m.is_enabled
	FROM meals m
	JOIN sellers s ON s.id = m.seller_id
	WHERE m.id = $1
`

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Meal, error) {
	var m Meal
	err := r.db.QueryRowContext(ctx, getMealQuery, id).Scan(
		&m.ID, &m.SellerID, &m.SellerName, &m.SellerAddress, &m.Name, &m.Price,
		&m.Contents, &m.PrepTime, &m.ImageURL, &m.IsEnabled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meal{}, ErrNotFound
		}
		return Meal{}, err
	}
	return m, nil
}
