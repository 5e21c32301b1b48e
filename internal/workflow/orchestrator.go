// Package workflow applies matching decisions and explicit user actions to
// the event log and state projection, enforcing the transition guards of the
// donor-opportunity lifecycle.
package workflow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/david/donorflow/internal/db"
	"github.com/david/donorflow/internal/leverage"
	"github.com/david/donorflow/internal/match"
	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
)

// EventLog is the slice of the event store the orchestrator needs.
type EventLog interface {
	Append(ctx context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error)
	AppendWithMarker(ctx context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error)
	ListByPair(ctx context.Context, donorID uuid.UUID, key string) ([]models.Event, error)
	LatestScheduled(ctx context.Context, donorID uuid.UUID, key string) (*models.ScheduledPayload, error)
	MarkedKeys(ctx context.Context, donorID uuid.UUID) (map[string]bool, error)
}

// StateProjection is the derived current-state cache per pair.
type StateProjection interface {
	Get(ctx context.Context, donorID uuid.UUID, key string) (models.State, error)
	Upsert(ctx context.Context, donorID uuid.UUID, key string, state models.State, now time.Time) error
	ListByDonor(ctx context.Context, donorID uuid.UUID) ([]models.OpportunityState, error)
}

// VisionReader supplies the donor's giving intent, read-only.
type VisionReader interface {
	Get(ctx context.Context, donorID uuid.UUID) (*models.Vision, error)
}

// CandidateLister supplies normalized opportunities from all three origins.
type CandidateLister interface {
	ListForDonor(ctx context.Context, donorID uuid.UUID) ([]models.OpportunityCandidate, error)
	Get(ctx context.Context, donorID uuid.UUID, key string) (*models.OpportunityCandidate, error)
}

// OfferRepo persists leverage offers.
type OfferRepo interface {
	Create(ctx context.Context, offer *models.LeverageOffer) (*models.LeverageOffer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.LeverageOffer, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OfferStatus) error
}

// Collaborators are the notification/document stores. The core is a
// producer only.
type Collaborators interface {
	CreateNotification(ctx context.Context, donorID uuid.UUID, typ string, metadata map[string]any) error
	CreateDocument(ctx context.Context, donorID uuid.UUID, opportunityKey, name, category string) error
}

// Orchestrator is the only writer of events and states.
type Orchestrator struct {
	Events     EventLog
	States     StateProjection
	Visions    VisionReader
	Candidates CandidateLister
	Offers     OfferRepo
	Collab     Collaborators

	now func() time.Time
}

func NewOrchestrator(events EventLog, states StateProjection, visions VisionReader, candidates CandidateLister, offers OfferRepo, collab Collaborators) *Orchestrator {
	return &Orchestrator{
		Events:     events,
		States:     states,
		Visions:    visions,
		Candidates: candidates,
		Offers:     offers,
		Collab:     collab,
		now:        time.Now,
	}
}

// RecordAction applies one explicit action to a pair: appends the event and
// moves the coarse state where the machine says so. Returns the event id and
// the state after the action.
func (o *Orchestrator) RecordAction(ctx context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, models.State, error) {
	if payload == nil {
		return uuid.Nil, "", validationf("missing action payload")
	}

	if _, err := o.Candidates.Get(ctx, donorID, key); err != nil {
		if errors.Is(err, db.ErrCandidateNotFound) {
			return uuid.Nil, "", ErrNotFound
		}
		return uuid.Nil, "", err
	}

	current, err := o.States.Get(ctx, donorID, key)
	if err != nil {
		return uuid.Nil, "", err
	}

	next := current
	switch p := payload.(type) {
	case models.SavePayload:
		// Always permitted, including un-passing a passed opportunity.
		next = models.StateShortlisted

	case models.PassPayload:
		next = models.StatePassed

	case models.RequestInfoPayload:
		if p.Tier != models.TierLight && p.Tier != models.TierDeep {
			return uuid.Nil, "", validationf("info tier must be light or deep, got %q", p.Tier)
		}

	case models.ScheduledPayload:
		if current != models.StateShortlisted && current != models.StateScheduled {
			return uuid.Nil, "", guardf("cannot schedule from state %q; shortlist first", current)
		}
		if p.MeetingType == "" {
			return uuid.Nil, "", validationf("meeting type is required")
		}
		if p.ProposedTime.IsZero() {
			return uuid.Nil, "", validationf("proposed time is required")
		}
		next = models.StateScheduled

	case models.MeetingCompletedPayload:
		// The one hard precondition of the machine: checked against event
		// history at the moment of the action, never against the coarse
		// state alone.
		latest, err := o.Events.LatestScheduled(ctx, donorID, key)
		if err != nil {
			return uuid.Nil, "", err
		}
		if latest == nil {
			return uuid.Nil, "", guardf("no scheduled meeting exists for this opportunity")
		}
		if latest.OrgResponse != models.OrgResponseAccepted {
			return uuid.Nil, "", guardf("latest schedule has not been accepted by the organization (response %q)", latest.OrgResponse)
		}
		// Meeting completion refines the record without changing state.

	case models.DiligenceCompletedPayload:
		// Annotation only.

	case models.FundedPayload:
		if p.Amount < 0 {
			return uuid.Nil, "", validationf("funded amount cannot be negative")
		}
		next = models.StateFunded

	case models.DAFPacketGeneratedPayload:
		// Annotation only; the packet itself lives with the document
		// collaborator.

	default:
		return uuid.Nil, "", validationf("unsupported action type %q", payload.EventType())
	}

	id, err := o.Events.Append(ctx, donorID, key, payload)
	if err != nil {
		return uuid.Nil, "", err
	}

	if next != current {
		if err := o.States.Upsert(ctx, donorID, key, next, o.now()); err != nil {
			return uuid.Nil, "", err
		}
	}
	return id, next, nil
}

// Actor is the trusted identity supplied by the session collaborator.
type Actor struct {
	ID   uuid.UUID
	Role string
}

const (
	RoleDonor     = "donor"
	RoleRequestor = "requestor"
)

// AdvanceStage is the requestor-facing stage advancement. Requestors may
// only advance stages on funding requests they created; donors only on
// their own pairs.
func (o *Orchestrator) AdvanceStage(ctx context.Context, actor Actor, donorID uuid.UUID, key string, payload models.EventPayload) (models.State, error) {
	cand, err := o.Candidates.Get(ctx, donorID, key)
	if err != nil {
		if errors.Is(err, db.ErrCandidateNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	switch actor.Role {
	case RoleDonor:
		if actor.ID != donorID {
			return "", ErrForbidden
		}
	case RoleRequestor:
		if cand.CreatorID == nil || *cand.CreatorID != actor.ID {
			return "", ErrForbidden
		}
	default:
		return "", ErrForbidden
	}

	_, state, err := o.RecordAction(ctx, donorID, key, payload)
	return state, err
}

// ReviewSummary reports one concierge pass.
type ReviewSummary struct {
	ProcessedCount int                           `json:"processed_count"`
	Results        map[string]models.MatchResult `json:"results"`
}

// RunReview triages the donor's untouched opportunities against their
// vision. Only pairs in state "new" without a review marker are considered,
// so an immediate second run processes nothing and writes nothing.
func (o *Orchestrator) RunReview(ctx context.Context, donorID uuid.UUID) (*ReviewSummary, error) {
	vision, err := o.Visions.Get(ctx, donorID)
	if err != nil {
		if errors.Is(err, db.ErrVisionNotFound) {
			return nil, validationf("donor has no vision; the review pass needs one")
		}
		return nil, err
	}

	candidates, err := o.Candidates.ListForDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}

	marked, err := o.Events.MarkedKeys(ctx, donorID)
	if err != nil {
		return nil, err
	}

	states, err := o.States.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	stateByKey := make(map[string]models.State, len(states))
	for _, st := range states {
		stateByKey[st.OpportunityKey] = st.State
	}

	var eligible []models.OpportunityCandidate
	for _, cand := range candidates {
		state, ok := stateByKey[cand.Key]
		if !ok {
			state = models.StateNew
		}
		if state != models.StateNew || marked[cand.Key] {
			continue
		}
		eligible = append(eligible, cand)
	}

	results := match.Review(eligible, *vision)
	summary := &ReviewSummary{Results: results}

	for _, cand := range eligible {
		res := results[cand.Key]
		switch {
		case !res.Matched:
			_, err = o.Events.AppendWithMarker(ctx, donorID, cand.Key, models.PassPayload{
				Source: models.SourceConcierge,
				Reason: res.Reason,
			})
			if err != nil {
				return nil, err
			}
			if err := o.States.Upsert(ctx, donorID, cand.Key, models.StatePassed, o.now()); err != nil {
				return nil, err
			}

		case res.InfoTier == models.TierNone:
			// Strong match: stays in discovery, annotated only.
			_, err = o.Events.AppendWithMarker(ctx, donorID, cand.Key, models.ConciergeReviewPayload{
				Source: models.SourceConcierge,
				Reason: res.Reason,
			})
			if err != nil {
				return nil, err
			}

		default:
			_, err = o.Events.AppendWithMarker(ctx, donorID, cand.Key, models.RequestInfoPayload{
				Source: models.SourceConcierge,
				Tier:   res.InfoTier,
				Reason: res.Reason,
			})
			if err != nil {
				return nil, err
			}
		}
		summary.ProcessedCount++
	}

	return summary, nil
}

// OfferInput is the donor's raw offer form.
type OfferInput struct {
	AnchorAmount float64           `json:"anchor_amount"`
	MatchMode    models.MatchMode  `json:"match_mode"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
	Terms        models.OfferTerms `json:"terms"`
}

// CreateOffer computes and persists a leverage offer, then fires the two
// collaborator side effects: one notification to the donor and one draft
// document referencing the offer. Side-effect failures are logged and never
// roll back the offer.
func (o *Orchestrator) CreateOffer(ctx context.Context, donorID uuid.UUID, key string, input OfferInput) (*models.LeverageOffer, error) {
	cand, err := o.Candidates.Get(ctx, donorID, key)
	if err != nil {
		if errors.Is(err, db.ErrCandidateNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	calc, err := leverage.Calculate(leverage.Terms{
		AnchorAmount: input.AnchorAmount,
		MatchMode:    input.MatchMode,
		FundingGap:   cand.FundingGap,
	})
	if err != nil {
		return nil, validationf("%v", err)
	}

	offer := &models.LeverageOffer{
		DonorID:        donorID,
		OpportunityKey: key,
		AnchorAmount:   calc.AnchorAmount,
		MatchMode:      calc.MatchMode,
		ChallengeGoal:  calc.ChallengeGoal,
		TopUpCap:       calc.TopUpCap,
		TotalDeployed:  calc.TotalDeployed,
		Deadline:       input.Deadline,
		Terms:          input.Terms,
	}

	offer, err = o.Offers.Create(ctx, offer)
	if err != nil {
		if errors.Is(err, db.ErrOfferCodeConflict) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if err := o.Collab.CreateNotification(ctx, donorID, "leverage_offer_created", map[string]any{
		"offer_id":        offer.ID.String(),
		"code":            offer.Code,
		"opportunity_key": key,
		"anchor_amount":   offer.AnchorAmount,
		"challenge_goal":  offer.ChallengeGoal,
		"total_deployed":  offer.TotalDeployed,
		"match_mode":      string(offer.MatchMode),
	}); err != nil {
		log.Printf("offer %s: notification write failed: %v", offer.Code, err)
	}

	if err := o.Collab.CreateDocument(ctx, donorID, key, "Leverage offer "+offer.Code, "offer"); err != nil {
		log.Printf("offer %s: draft document write failed: %v", offer.Code, err)
	}

	return offer, nil
}

var offerStatusRank = map[models.OfferStatus]int{
	models.OfferDraft:    0,
	models.OfferSent:     1,
	models.OfferAccepted: 2,
	models.OfferDeclined: 2,
	models.OfferExpired:  2,
}

// AdvanceOffer moves an offer's status forward. Offers never move backward
// and terminal statuses never change.
func (o *Orchestrator) AdvanceOffer(ctx context.Context, donorID, offerID uuid.UUID, status models.OfferStatus) (*models.LeverageOffer, error) {
	offer, err := o.Offers.Get(ctx, offerID)
	if err != nil {
		if errors.Is(err, db.ErrOfferNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if offer.DonorID != donorID {
		return nil, ErrForbidden
	}

	newRank, ok := offerStatusRank[status]
	if !ok {
		return nil, validationf("unknown offer status %q", status)
	}
	if newRank <= offerStatusRank[offer.Status] {
		return nil, guardf("offer status cannot move from %q to %q", offer.Status, status)
	}

	if err := o.Offers.UpdateStatus(ctx, offerID, status); err != nil {
		return nil, err
	}
	offer.Status = status
	return offer, nil
}
