package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOfferCodeConflict is returned when code generation kept colliding with
// existing offers after the retry bound.
var ErrOfferCodeConflict = errors.New("offer code conflict")

// ErrOfferNotFound is returned when no offer matches the lookup.
var ErrOfferNotFound = errors.New("offer not found")

const offerCodeRetries = 5

type OfferStore struct {
	pool *pgxpool.Pool
}

func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

// newOfferCode derives a short human-pasteable code from a fresh UUID.
func newOfferCode() string {
	return "LV-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

// Create persists a computed offer. The random code is regenerated and the
// insert retried up to 5 times on a uniqueness violation before giving up.
func (s *OfferStore) Create(ctx context.Context, offer *models.LeverageOffer) (*models.LeverageOffer, error) {
	for attempt := 0; attempt < offerCodeRetries; attempt++ {
		code := newOfferCode()
		err := s.pool.QueryRow(ctx, `
			INSERT INTO leverage_offers (
				code, donor_id, opportunity_key, anchor_amount, match_mode,
				challenge_goal, top_up_cap, total_deployed, deadline,
				proof_required, milestone_release, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, code, status, created_at, updated_at
		`,
			code, offer.DonorID, offer.OpportunityKey, offer.AnchorAmount, string(offer.MatchMode),
			offer.ChallengeGoal, offer.TopUpCap, offer.TotalDeployed, offer.Deadline,
			offer.Terms.ProofRequired, offer.Terms.MilestoneRelease, string(models.OfferDraft),
		).Scan(&offer.ID, &offer.Code, &offer.Status, &offer.CreatedAt, &offer.UpdatedAt)

		if err == nil {
			return offer, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("insert offer: %w", err)
	}

	return nil, ErrOfferCodeConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const offerCols = `id, code, donor_id, opportunity_key, anchor_amount, match_mode,
	challenge_goal, top_up_cap, total_deployed, deadline,
	proof_required, milestone_release, status, created_at, updated_at`

func scanOffer(scan func(dest ...interface{}) error) (models.LeverageOffer, error) {
	var o models.LeverageOffer
	var mode, status string
	err := scan(
		&o.ID, &o.Code, &o.DonorID, &o.OpportunityKey, &o.AnchorAmount, &mode,
		&o.ChallengeGoal, &o.TopUpCap, &o.TotalDeployed, &o.Deadline,
		&o.Terms.ProofRequired, &o.Terms.MilestoneRelease, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.MatchMode = models.MatchMode(mode)
	o.Status = models.OfferStatus(status)
	return o, nil
}

func (s *OfferStore) Get(ctx context.Context, id uuid.UUID) (*models.LeverageOffer, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM leverage_offers WHERE id = $1", offerCols), id)
	o, err := scanOffer(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return &o, nil
}

// UpdateStatus is the only mutation offers support after creation.
func (s *OfferStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OfferStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leverage_offers SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOfferNotFound
	}
	return nil
}

func (s *OfferStore) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]models.LeverageOffer, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM leverage_offers WHERE donor_id = $1 ORDER BY created_at DESC
	`, offerCols), donorID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []models.LeverageOffer
	for rows.Next() {
		o, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return offers, nil
}
