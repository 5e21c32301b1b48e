package models

import (
	"time"

	"github.com/google/uuid"
)

// Vision is a donor's stated giving intent. One row per donor, owned and
// editable only by that donor; the matching engine reads it and nothing else.
type Vision struct {
	DonorID       uuid.UUID `json:"donor_id"`
	Pillars       []string  `json:"pillars"`
	GeoFocus      []string  `json:"geo_focus"`
	Budget        float64   `json:"budget"`
	HorizonMonths int       `json:"horizon_months"`
	Outcome       string    `json:"outcome"` // desired 12-month outcome statement
	UpdatedAt     time.Time `json:"updated_at"`
}

// InfoTier grades how much additional information the concierge pass should
// request from the source before the donor can act.
type InfoTier string

const (
	TierNone  InfoTier = "none"
	TierLight InfoTier = "light"
	TierDeep  InfoTier = "deep"
)

// MatchResult is the matching engine's per-candidate decision. It is
// transient: the orchestrator turns it into events, it is never stored.
type MatchResult struct {
	Matched  bool     `json:"matched"`
	InfoTier InfoTier `json:"info_tier"`
	Reason   string   `json:"reason"`
}
