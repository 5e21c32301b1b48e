package db

import (
	"context"
	"fmt"
	"time"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateStore holds the derived current-state projection per pair. The
// uniqueness constraint on (donor_id, opportunity_key) plus the single
// ON CONFLICT upsert is the whole concurrency story; there is no
// application-level locking.
type StateStore struct {
	pool *pgxpool.Pool
}

func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Get returns the pair's state, defaulting to "new" when no row exists.
// Row creation is implicit on first Upsert (create-or-get semantics).
func (s *StateStore) Get(ctx context.Context, donorID uuid.UUID, key string) (models.State, error) {
	var state string
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM opportunity_states
		WHERE donor_id = $1 AND opportunity_key = $2
	`, donorID, key).Scan(&state)
	if err == pgx.ErrNoRows {
		return models.StateNew, nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return models.State(state), nil
}

// Upsert atomically inserts or overwrites the pair's state row.
// Last write wins on state and updated_at.
func (s *StateStore) Upsert(ctx context.Context, donorID uuid.UUID, key string, state models.State, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunity_states (donor_id, opportunity_key, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (donor_id, opportunity_key) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, donorID, key, string(state), now)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// ListByDonor returns every tracked pair for the donor, most recently
// touched first.
func (s *StateStore) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]models.OpportunityState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT donor_id, opportunity_key, state, updated_at
		FROM opportunity_states
		WHERE donor_id = $1
		ORDER BY updated_at DESC
	`, donorID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []models.OpportunityState
	for rows.Next() {
		var st models.OpportunityState
		var state string
		if err := rows.Scan(&st.DonorID, &st.OpportunityKey, &state, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st.State = models.State(state)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return states, nil
}
