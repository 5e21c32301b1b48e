package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVisionNotFound is returned when a donor has not written a vision yet.
var ErrVisionNotFound = errors.New("vision not found")

type VisionStore struct {
	pool *pgxpool.Pool
}

func NewVisionStore(pool *pgxpool.Pool) *VisionStore {
	return &VisionStore{pool: pool}
}

func (s *VisionStore) Get(ctx context.Context, donorID uuid.UUID) (*models.Vision, error) {
	var v models.Vision
	err := s.pool.QueryRow(ctx, `
		SELECT donor_id, pillars, geo_focus, budget, horizon_months, outcome, updated_at
		FROM visions WHERE donor_id = $1
	`, donorID).Scan(&v.DonorID, &v.Pillars, &v.GeoFocus, &v.Budget, &v.HorizonMonths, &v.Outcome, &v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrVisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vision: %w", err)
	}
	return &v, nil
}

// Upsert writes the donor's vision, one row per donor.
func (s *VisionStore) Upsert(ctx context.Context, v *models.Vision, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO visions (donor_id, pillars, geo_focus, budget, horizon_months, outcome, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (donor_id) DO UPDATE SET
			pillars = EXCLUDED.pillars,
			geo_focus = EXCLUDED.geo_focus,
			budget = EXCLUDED.budget,
			horizon_months = EXCLUDED.horizon_months,
			outcome = EXCLUDED.outcome,
			updated_at = EXCLUDED.updated_at
	`, v.DonorID, v.Pillars, v.GeoFocus, v.Budget, v.HorizonMonths, v.Outcome, now)
	if err != nil {
		return fmt.Errorf("upsert vision: %w", err)
	}
	return nil
}
