package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCandidateNotFound is returned when an opportunity key resolves to no
// candidate in any origin.
var ErrCandidateNotFound = errors.New("opportunity not found")

// CandidateStore reads the three opportunity origins. All of them are
// read-only inputs to the matching engine; this store only ever writes the
// rows users create at the boundary (link submissions, funding requests,
// curated seed).
type CandidateStore struct {
	pool *pgxpool.Pool
}

func NewCandidateStore(pool *pgxpool.Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

func (s *CandidateStore) CreateSubmittedLink(ctx context.Context, link *models.SubmittedLink) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO submitted_links (donor_id, url, title, summary, category, location, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, link.DonorID, link.URL, link.Title, link.Summary, link.Category, link.Location, link.Amount).
		Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submitted link: %w", err)
	}
	return nil
}

func (s *CandidateStore) ListSubmittedLinks(ctx context.Context, donorID uuid.UUID) ([]models.SubmittedLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, donor_id, url, title, summary, category, location, amount, created_at
		FROM submitted_links WHERE donor_id = $1 ORDER BY created_at DESC
	`, donorID)
	if err != nil {
		return nil, fmt.Errorf("list submitted links: %w", err)
	}
	defer rows.Close()

	var links []models.SubmittedLink
	for rows.Next() {
		var l models.SubmittedLink
		if err := rows.Scan(&l.ID, &l.DonorID, &l.URL, &l.Title, &l.Summary, &l.Category, &l.Location, &l.Amount, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submitted link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return links, nil
}

func (s *CandidateStore) CreateFundingRequest(ctx context.Context, req *models.FundingRequest) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO funding_requests (creator_id, title, summary, category, location, amount_goal, amount_raised)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, req.CreatorID, req.Title, req.Summary, req.Category, req.Location, req.AmountGoal, req.AmountRaised).
		Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert funding request: %w", err)
	}
	return nil
}

func (s *CandidateStore) ListFundingRequests(ctx context.Context) ([]models.FundingRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, creator_id, title, summary, category, location, amount_goal, amount_raised, created_at
		FROM funding_requests ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list funding requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.FundingRequest
	for rows.Next() {
		var r models.FundingRequest
		if err := rows.Scan(&r.ID, &r.CreatorID, &r.Title, &r.Summary, &r.Category, &r.Location, &r.AmountGoal, &r.AmountRaised, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan funding request: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return reqs, nil
}

// CuratedEntry mirrors one embedded catalog row in the cache table.
type CuratedEntry struct {
	ID         string
	Title      string
	Summary    string
	Category   string
	Location   string
	Amount     float64
	FundingGap float64
}

// UpsertCuratedEntry refreshes the curated cache from the embedded catalog.
func (s *CandidateStore) UpsertCuratedEntry(ctx context.Context, e CuratedEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO curated_entries (id, title, summary, category, location, amount, funding_gap)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			category = EXCLUDED.category,
			location = EXCLUDED.location,
			amount = EXCLUDED.amount,
			funding_gap = EXCLUDED.funding_gap,
			updated_at = NOW()
	`, e.ID, e.Title, e.Summary, e.Category, e.Location, e.Amount, e.FundingGap)
	if err != nil {
		return fmt.Errorf("upsert curated entry: %w", err)
	}
	return nil
}

func (s *CandidateStore) ListCuratedEntries(ctx context.Context) ([]CuratedEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, summary, category, location, amount, funding_gap
		FROM curated_entries ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list curated entries: %w", err)
	}
	defer rows.Close()

	var entries []CuratedEntry
	for rows.Next() {
		var e CuratedEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.Category, &e.Location, &e.Amount, &e.FundingGap); err != nil {
			return nil, fmt.Errorf("scan curated entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return entries, nil
}
