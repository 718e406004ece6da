package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

type PropertyRepo struct {
	pool *pgxpool.Pool
}

func NewPropertyRepo(pool *pgxpool.Pool) *PropertyRepo {
	return &PropertyRepo{pool: pool}
}

func (r *PropertyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	var p models.Property
	err := r.pool.QueryRow(ctx, `
		SELECT id, host_id, title, city, nightly_fee, created_at FROM properties WHERE id = $1
	`, id).Scan(&p.ID, &p.HostID, &p.Title, &p.City, &p.NightlyFee, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
