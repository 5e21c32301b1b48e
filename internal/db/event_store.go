package db

import (
	"context"
	"fmt"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore is the append-only log of every decision or action taken on a
// (donor, opportunity) pair. There is no update or delete path.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes one event and returns its id.
func (s *EventStore) Append(ctx context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error) {
	raw, err := models.EncodeEventPayload(payload)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO events (donor_id, opportunity_key, type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, donorID, key, string(payload.EventType()), raw).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// AppendWithMarker writes a concierge event and the pair's review marker in
// one transaction, so re-running the pass can never double-process a pair.
func (s *EventStore) AppendWithMarker(ctx context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error) {
	raw, err := models.EncodeEventPayload(payload)
	if err != nil {
		return uuid.Nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin marker tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO events (donor_id, opportunity_key, type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, donorID, key, string(payload.EventType()), raw).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("append concierge event: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO review_markers (donor_id, opportunity_key, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (donor_id, opportunity_key) DO NOTHING
	`, donorID, key, id); err != nil {
		return uuid.Nil, fmt.Errorf("write review marker: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit marker tx: %w", err)
	}
	return id, nil
}

func scanEvent(scan func(dest ...interface{}) error) (models.Event, error) {
	var e models.Event
	var typ string
	var raw []byte

	if err := scan(&e.ID, &e.DonorID, &e.OpportunityKey, &typ, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Type = models.EventType(typ)

	payload, err := models.DecodeEventPayload(e.Type, raw)
	if err != nil {
		return e, err
	}
	e.Payload = payload
	return e, nil
}

const eventCols = "id, donor_id, opportunity_key, type, payload, created_at"

// ListByDonor returns the donor's events newest first.
func (s *EventStore) ListByDonor(ctx context.Context, donorID uuid.UUID, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM events
		WHERE donor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, eventCols), donorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListByPair returns a pair's events oldest first, the order replay needs.
func (s *EventStore) ListByPair(ctx context.Context, donorID uuid.UUID, key string) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM events
		WHERE donor_id = $1 AND opportunity_key = $2
		ORDER BY created_at ASC, id ASC
	`, eventCols), donorID, key)
	if err != nil {
		return nil, fmt.Errorf("list pair events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return events, nil
}

// LatestScheduled returns the most recent scheduled event's payload for a
// pair, selected by created_at rather than insertion position. Returns
// (nil, nil) when the pair has never been scheduled.
func (s *EventStore) LatestScheduled(ctx context.Context, donorID uuid.UUID, key string) (*models.ScheduledPayload, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM events
		WHERE donor_id = $1 AND opportunity_key = $2 AND type = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, donorID, key, string(models.EventScheduled)).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scheduled: %w", err)
	}

	payload, err := models.DecodeEventPayload(models.EventScheduled, raw)
	if err != nil {
		return nil, err
	}
	sched := payload.(models.ScheduledPayload)
	return &sched, nil
}

// MarkedKeys returns the set of opportunity keys already processed by the
// concierge pass for this donor.
func (s *EventStore) MarkedKeys(ctx context.Context, donorID uuid.UUID) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_key FROM review_markers WHERE donor_id = $1
	`, donorID)
	if err != nil {
		return nil, fmt.Errorf("list review markers: %w", err)
	}
	defer rows.Close()

	marked := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		marked[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return marked, nil
}
