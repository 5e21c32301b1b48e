package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchMode selects how the donor's conditional pledge is computed.
type MatchMode string

const (
	ModeMatch     MatchMode = "match"     // 1:1 match up to the anchor
	ModeRemainder MatchMode = "remainder" // cover whatever remains of the gap
)

// OfferStatus is the leverage offer lifecycle. Forward-only.
type OfferStatus string

const (
	OfferDraft    OfferStatus = "draft"
	OfferSent     OfferStatus = "sent"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
	OfferExpired  OfferStatus = "expired"
)

// OfferTerms are the structured flags a donor attaches to a conditional gift.
type OfferTerms struct {
	ProofRequired    bool `json:"proof_required"`
	MilestoneRelease bool `json:"milestone_release"`
}

// LeverageOffer is a donor's conditional commitment tied to an opportunity
// reaching a fundraising goal by a deadline. Immutable after creation except
// for status advancement.
type LeverageOffer struct {
	ID             uuid.UUID   `json:"id"`
	Code           string      `json:"code"`
	DonorID        uuid.UUID   `json:"donor_id"`
	OpportunityKey string      `json:"opportunity_key"`
	AnchorAmount   float64     `json:"anchor_amount"`
	MatchMode      MatchMode   `json:"match_mode"`
	ChallengeGoal  float64     `json:"challenge_goal"`
	TopUpCap       float64     `json:"top_up_cap"`
	TotalDeployed  float64     `json:"total_deployed"`
	Deadline       *time.Time  `json:"deadline,omitempty"`
	Terms          OfferTerms  `json:"terms"`
	Status         OfferStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Notification is a producer-only record for the notification collaborator.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	DonorID   uuid.UUID      `json:"donor_id"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Document is a producer-only record for the document collaborator. The core
// never generates file contents, only the draft record.
type Document struct {
	ID             uuid.UUID `json:"id"`
	DonorID        uuid.UUID `json:"donor_id"`
	OpportunityKey string    `json:"opportunity_key"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	CreatedAt      time.Time `json:"created_at"`
}
