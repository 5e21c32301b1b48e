package models

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies which of the three sources a candidate came from.
type Origin string

const (
	OriginCurated   Origin = "curated"
	OriginSubmitted Origin = "submitted"
	OriginRequested Origin = "request"
)

// OpportunityCandidate is the normalized shape every origin is reduced to
// before it reaches the matching engine. Key is stable for the lifetime of
// the opportunity and is prefixed with the origin (e.g. "curated:gates-gc").
type OpportunityCandidate struct {
	Key        string     `json:"key"`
	Origin     Origin     `json:"origin"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	Category   string     `json:"category"`
	Location   string     `json:"location"`
	Amount     float64    `json:"amount"`
	FundingGap float64    `json:"funding_gap"` // 0 = unknown
	CreatorID  *uuid.UUID `json:"creator_id,omitempty"`
}

// SubmittedLink is a donor-submitted opportunity pointer before normalization.
type SubmittedLink struct {
	ID        uuid.UUID `json:"id"`
	DonorID   uuid.UUID `json:"donor_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Category  string    `json:"category"`
	Location  string    `json:"location"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// FundingRequest is a structured ask created by a requestor account.
type FundingRequest struct {
	ID           uuid.UUID `json:"id"`
	CreatorID    uuid.UUID `json:"creator_id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Category     string    `json:"category"`
	Location     string    `json:"location"`
	AmountGoal   float64   `json:"amount_goal"`
	AmountRaised float64   `json:"amount_raised"`
	CreatedAt    time.Time `json:"created_at"`
}

// Gap is the outstanding amount still to be raised.
func (r FundingRequest) Gap() float64 {
	gap := r.AmountGoal - r.AmountRaised
	if gap < 0 {
		return 0
	}
	return gap
}
