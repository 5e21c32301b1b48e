package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollabStore is the write-only boundary to the notification and document
// collaborators. The core produces records here and never reads them back.
type CollabStore struct {
	pool *pgxpool.Pool
}

func NewCollabStore(pool *pgxpool.Pool) *CollabStore {
	return &CollabStore{pool: pool}
}

func (s *CollabStore) CreateNotification(ctx context.Context, donorID uuid.UUID, typ string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (donor_id, type, metadata)
		VALUES ($1, $2, $3)
	`, donorID, typ, raw); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *CollabStore) CreateDocument(ctx context.Context, donorID uuid.UUID, opportunityKey, name, category string) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO documents (donor_id, opportunity_key, name, category)
		VALUES ($1, $2, $3, $4)
	`, donorID, opportunityKey, name, category); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}
