package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/david/donorflow/internal/db"
	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
)

// Adapter reduces the three origins to normalized candidates. Curated
// entries come from the database cache (seeded from the embedded catalog),
// submitted links are scoped to the donor, funding requests are visible to
// every donor.
type Adapter struct {
	store *db.CandidateStore
}

func NewAdapter(store *db.CandidateStore) *Adapter {
	return &Adapter{store: store}
}

// CandidateFromCurated converts a curated cache row.
func CandidateFromCurated(e db.CuratedEntry) models.OpportunityCandidate {
	return models.OpportunityCandidate{
		Key:        fmt.Sprintf("%s:%s", models.OriginCurated, e.ID),
		Origin:     models.OriginCurated,
		Title:      e.Title,
		Summary:    e.Summary,
		Category:   e.Category,
		Location:   e.Location,
		Amount:     e.Amount,
		FundingGap: e.FundingGap,
	}
}

// CandidateFromLink converts a donor-submitted link. Links carry no known
// funding gap.
func CandidateFromLink(l models.SubmittedLink) models.OpportunityCandidate {
	return models.OpportunityCandidate{
		Key:      fmt.Sprintf("%s:%s", models.OriginSubmitted, l.ID),
		Origin:   models.OriginSubmitted,
		Title:    l.Title,
		Summary:  l.Summary,
		Category: l.Category,
		Location: l.Location,
		Amount:   l.Amount,
	}
}

// CandidateFromRequest converts a funding request. The remaining gap is
// derived from goal and raised-so-far.
func CandidateFromRequest(r models.FundingRequest) models.OpportunityCandidate {
	creator := r.CreatorID
	return models.OpportunityCandidate{
		Key:        fmt.Sprintf("%s:%s", models.OriginRequested, r.ID),
		Origin:     models.OriginRequested,
		Title:      r.Title,
		Summary:    r.Summary,
		Category:   r.Category,
		Location:   r.Location,
		Amount:     r.AmountGoal,
		FundingGap: r.Gap(),
		CreatorID:  &creator,
	}
}

// ListForDonor returns every candidate visible to the donor, in a stable
// order: curated first, then the donor's own links, then open requests.
func (a *Adapter) ListForDonor(ctx context.Context, donorID uuid.UUID) ([]models.OpportunityCandidate, error) {
	curated, err := a.store.ListCuratedEntries(ctx)
	if err != nil {
		return nil, err
	}
	links, err := a.store.ListSubmittedLinks(ctx, donorID)
	if err != nil {
		return nil, err
	}
	requests, err := a.store.ListFundingRequests(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.OpportunityCandidate, 0, len(curated)+len(links)+len(requests))
	for _, e := range curated {
		out = append(out, CandidateFromCurated(e))
	}
	for _, l := range links {
		out = append(out, CandidateFromLink(l))
	}
	for _, r := range requests {
		out = append(out, CandidateFromRequest(r))
	}
	return out, nil
}

// Get resolves one opportunity key for the donor. Unknown origins and
// unknown ids both report db.ErrCandidateNotFound; callers treat the key
// as opaque and never learn which half was wrong.
func (a *Adapter) Get(ctx context.Context, donorID uuid.UUID, key string) (*models.OpportunityCandidate, error) {
	origin, _, ok := strings.Cut(key, ":")
	if !ok {
		return nil, db.ErrCandidateNotFound
	}
	switch models.Origin(origin) {
	case models.OriginCurated, models.OriginSubmitted, models.OriginRequested:
	default:
		return nil, db.ErrCandidateNotFound
	}

	candidates, err := a.ListForDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].Key == key {
			return &candidates[i], nil
		}
	}
	return nil, db.ErrCandidateNotFound
}

// SeedCurated refreshes the curated cache from the embedded catalog.
// Returns the number of entries written.
func (a *Adapter) SeedCurated(ctx context.Context, cat *Catalog) (int, error) {
	for _, e := range cat.Entries {
		err := a.store.UpsertCuratedEntry(ctx, db.CuratedEntry{
			ID:         e.ID,
			Title:      e.Title,
			Summary:    e.Summary,
			Category:   e.Category,
			Location:   e.Location,
			Amount:     e.Amount,
			FundingGap: e.FundingGap,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(cat.Entries), nil
}
