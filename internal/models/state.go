package models

import (
	"time"

	"github.com/google/uuid"
)

// State is the coarse workflow position of a (donor, opportunity) pair.
// It is a derived cache over the event log and must always be rebuildable
// by replaying the pair's events oldest-first.
type State string

const (
	StateNew         State = "new"
	StatePassed      State = "passed"
	StateShortlisted State = "shortlisted"
	StateScheduled   State = "scheduled"
	StateFunded      State = "funded"
)

// Valid reports whether s is one of the known workflow states.
func (s State) Valid() bool {
	switch s {
	case StateNew, StatePassed, StateShortlisted, StateScheduled, StateFunded:
		return true
	}
	return false
}

// OpportunityState is the stored projection: at most one row per pair,
// created implicitly on first transition.
type OpportunityState struct {
	DonorID        uuid.UUID `json:"donor_id"`
	OpportunityKey string    `json:"opportunity_key"`
	State          State     `json:"state"`
	UpdatedAt      time.Time `json:"updated_at"`
}
