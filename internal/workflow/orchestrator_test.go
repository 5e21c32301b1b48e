package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/david/donorflow/internal/db"
	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
)

// In-memory doubles for the store interfaces. They keep the same ordering
// and idempotency semantics as the Postgres stores.

type memEvents struct {
	events  []models.Event
	markers map[string]bool
	seq     int
}

func newMemEvents() *memEvents {
	return &memEvents{markers: map[string]bool{}}
}

func (m *memEvents) append(donorID uuid.UUID, key string, payload models.EventPayload) uuid.UUID {
	m.seq++
	e := models.Event{
		ID:             uuid.New(),
		DonorID:        donorID,
		OpportunityKey: key,
		Type:           payload.EventType(),
		Payload:        payload,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, m.seq, time.UTC),
	}
	m.events = append(m.events, e)
	return e.ID
}

func (m *memEvents) Append(_ context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error) {
	return m.append(donorID, key, payload), nil
}

func (m *memEvents) AppendWithMarker(_ context.Context, donorID uuid.UUID, key string, payload models.EventPayload) (uuid.UUID, error) {
	id := m.append(donorID, key, payload)
	m.markers[donorID.String()+"|"+key] = true
	return id, nil
}

func (m *memEvents) ListByPair(_ context.Context, donorID uuid.UUID, key string) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.events {
		if e.DonorID == donorID && e.OpportunityKey == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) LatestScheduled(_ context.Context, donorID uuid.UUID, key string) (*models.ScheduledPayload, error) {
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.DonorID == donorID && e.OpportunityKey == key && e.Type == models.EventScheduled {
			p := e.Payload.(models.ScheduledPayload)
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memEvents) MarkedKeys(_ context.Context, donorID uuid.UUID) (map[string]bool, error) {
	out := map[string]bool{}
	for k := range m.markers {
		prefix := donorID.String() + "|"
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = true
		}
	}
	return out, nil
}

func (m *memEvents) countByType(typ models.EventType) int {
	n := 0
	for _, e := range m.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type memStates struct {
	states map[string]models.OpportunityState
}

func newMemStates() *memStates { return &memStates{states: map[string]models.OpportunityState{}} }

func (m *memStates) Get(_ context.Context, donorID uuid.UUID, key string) (models.State, error) {
	if st, ok := m.states[donorID.String()+"|"+key]; ok {
		return st.State, nil
	}
	return models.StateNew, nil
}

func (m *memStates) Upsert(_ context.Context, donorID uuid.UUID, key string, state models.State, now time.Time) error {
	m.states[donorID.String()+"|"+key] = models.OpportunityState{
		DonorID: donorID, OpportunityKey: key, State: state, UpdatedAt: now,
	}
	return nil
}

func (m *memStates) ListByDonor(_ context.Context, donorID uuid.UUID) ([]models.OpportunityState, error) {
	var out []models.OpportunityState
	for _, st := range m.states {
		if st.DonorID == donorID {
			out = append(out, st)
		}
	}
	return out, nil
}

type memVisions struct {
	visions map[uuid.UUID]*models.Vision
}

func (m *memVisions) Get(_ context.Context, donorID uuid.UUID) (*models.Vision, error) {
	if v, ok := m.visions[donorID]; ok {
		return v, nil
	}
	return nil, db.ErrVisionNotFound
}

type memCandidates struct {
	candidates []models.OpportunityCandidate
}

func (m *memCandidates) ListForDonor(_ context.Context, _ uuid.UUID) ([]models.OpportunityCandidate, error) {
	return m.candidates, nil
}

func (m *memCandidates) Get(_ context.Context, _ uuid.UUID, key string) (*models.OpportunityCandidate, error) {
	for i := range m.candidates {
		if m.candidates[i].Key == key {
			return &m.candidates[i], nil
		}
	}
	return nil, db.ErrCandidateNotFound
}

type memOffers struct {
	offers map[uuid.UUID]*models.LeverageOffer
	n      int
}

func newMemOffers() *memOffers { return &memOffers{offers: map[uuid.UUID]*models.LeverageOffer{}} }

func (m *memOffers) Create(_ context.Context, offer *models.LeverageOffer) (*models.LeverageOffer, error) {
	m.n++
	offer.ID = uuid.New()
	offer.Code = fmt.Sprintf("LV-%06d", m.n)
	offer.Status = models.OfferDraft
	m.offers[offer.ID] = offer
	return offer, nil
}

func (m *memOffers) Get(_ context.Context, id uuid.UUID) (*models.LeverageOffer, error) {
	if o, ok := m.offers[id]; ok {
		dup := *o
		return &dup, nil
	}
	return nil, db.ErrOfferNotFound
}

func (m *memOffers) UpdateStatus(_ context.Context, id uuid.UUID, status models.OfferStatus) error {
	o, ok := m.offers[id]
	if !ok {
		return db.ErrOfferNotFound
	}
	o.Status = status
	return nil
}

type memCollab struct {
	notifications int
	documents     int
	failWrites    bool
}

func (m *memCollab) CreateNotification(_ context.Context, _ uuid.UUID, _ string, _ map[string]any) error {
	if m.failWrites {
		return errors.New("notification store down")
	}
	m.notifications++
	return nil
}

func (m *memCollab) CreateDocument(_ context.Context, _ uuid.UUID, _, _, _ string) error {
	if m.failWrites {
		return errors.New("document store down")
	}
	m.documents++
	return nil
}

type fixture struct {
	orch       *Orchestrator
	events     *memEvents
	states     *memStates
	visions    *memVisions
	candidates *memCandidates
	offers     *memOffers
	collab     *memCollab
	donorID    uuid.UUID
}

func newFixture(candidates []models.OpportunityCandidate, vision *models.Vision) *fixture {
	f := &fixture{
		events:     newMemEvents(),
		states:     newMemStates(),
		visions:    &memVisions{visions: map[uuid.UUID]*models.Vision{}},
		candidates: &memCandidates{candidates: candidates},
		offers:     newMemOffers(),
		collab:     &memCollab{},
		donorID:    uuid.New(),
	}
	if vision != nil {
		v := *vision
		v.DonorID = f.donorID
		f.visions.visions[f.donorID] = &v
	}
	f.orch = NewOrchestrator(f.events, f.states, f.visions, f.candidates, f.offers, f.collab)
	f.orch.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestRunReview_AutoPassesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]models.OpportunityCandidate{
		{Key: "curated:env", Category: "Environment", Location: "Nairobi", Summary: "tree planting", Amount: 20000},
		{Key: "curated:health", Category: "Healthcare", Location: "New York, NY", Summary: "clinic", Amount: 50000},
	}, &models.Vision{Pillars: []string{"Healthcare"}, GeoFocus: []string{"NYC"}, Budget: 100000})

	summary, err := f.orch.RunReview(ctx, f.donorID)
	if err != nil {
		t.Fatalf("first review failed: %v", err)
	}
	if summary.ProcessedCount != 2 {
		t.Fatalf("expected 2 processed, got %d", summary.ProcessedCount)
	}

	// The non-overlapping candidate is auto-passed with a concierge-sourced
	// pass event, exactly once.
	if got := f.events.countByType(models.EventPass); got != 1 {
		t.Fatalf("expected exactly 1 pass event, got %d", got)
	}
	passEvents, _ := f.events.ListByPair(ctx, f.donorID, "curated:env")
	if len(passEvents) != 1 {
		t.Fatalf("expected 1 event on the passed pair, got %d", len(passEvents))
	}
	pass := passEvents[0].Payload.(models.PassPayload)
	if pass.Source != models.SourceConcierge {
		t.Fatalf("pass event must carry source=concierge, got %q", pass.Source)
	}
	if st, _ := f.states.Get(ctx, f.donorID, "curated:env"); st != models.StatePassed {
		t.Fatalf("expected passed state, got %s", st)
	}

	// The strong match stays in discovery with an annotation only.
	if got := f.events.countByType(models.EventConciergeReview); got != 1 {
		t.Fatalf("expected 1 concierge_review annotation, got %d", got)
	}
	if st, _ := f.states.Get(ctx, f.donorID, "curated:health"); st != models.StateNew {
		t.Fatalf("annotated match must stay new, got %s", st)
	}

	// Second run is a no-op.
	before := len(f.events.events)
	summary2, err := f.orch.RunReview(ctx, f.donorID)
	if err != nil {
		t.Fatalf("second review failed: %v", err)
	}
	if summary2.ProcessedCount != 0 {
		t.Fatalf("second run must process nothing, got %d", summary2.ProcessedCount)
	}
	if len(f.events.events) != before {
		t.Fatalf("second run appended events: %d -> %d", before, len(f.events.events))
	}
}

func TestRunReview_RequestsInfoForAmbiguousMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]models.OpportunityCandidate{
		{Key: "request:thin", Category: "Healthcare", Location: "", Summary: "", Amount: 0},
	}, &models.Vision{Pillars: []string{"Healthcare"}, GeoFocus: []string{"NYC"}})

	if _, err := f.orch.RunReview(ctx, f.donorID); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if got := f.events.countByType(models.EventRequestInfo); got != 1 {
		t.Fatalf("expected 1 request_info event, got %d", got)
	}
	req := f.events.events[0].Payload.(models.RequestInfoPayload)
	if req.Tier != models.TierDeep {
		t.Fatalf("sparse record should need deep info, got %s", req.Tier)
	}
	if st, _ := f.states.Get(ctx, f.donorID, "request:thin"); st != models.StateNew {
		t.Fatalf("info request must not change state, got %s", st)
	}
}

func TestRunReview_RequiresVision(t *testing.T) {
	f := newFixture(nil, nil)
	_, err := f.orch.RunReview(context.Background(), f.donorID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error without a vision, got %v", err)
	}
}

func testCandidate(key string) models.OpportunityCandidate {
	return models.OpportunityCandidate{
		Key: key, Category: "Healthcare", Location: "NYC", Summary: "clinic", Amount: 50000, FundingGap: 300000,
	}
}

func TestMeetingGuard(t *testing.T) {
	ctx := context.Background()
	key := "curated:clinic"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	// No scheduled event at all.
	_, _, err := f.orch.RecordAction(ctx, f.donorID, key, models.MeetingCompletedPayload{})
	if !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("expected guard violation with no schedule, got %v", err)
	}

	// Shortlist, then propose a meeting the org has not answered yet.
	if _, _, err := f.orch.RecordAction(ctx, f.donorID, key, models.SavePayload{}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	proposed := time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)
	_, state, err := f.orch.RecordAction(ctx, f.donorID, key, models.ScheduledPayload{
		MeetingType: "video", ProposedTime: proposed,
	})
	if err != nil || state != models.StateScheduled {
		t.Fatalf("schedule failed: state=%s err=%v", state, err)
	}

	_, _, err = f.orch.RecordAction(ctx, f.donorID, key, models.MeetingCompletedPayload{})
	if !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("expected guard violation before acceptance, got %v", err)
	}

	// Reschedule with the org's acceptance; state stays scheduled.
	_, state, err = f.orch.RecordAction(ctx, f.donorID, key, models.ScheduledPayload{
		MeetingType: "video", ProposedTime: proposed.Add(24 * time.Hour), OrgResponse: models.OrgResponseAccepted,
	})
	if err != nil || state != models.StateScheduled {
		t.Fatalf("reschedule failed: state=%s err=%v", state, err)
	}

	// Now completion is unlocked, and it does not alter the coarse state.
	_, state, err = f.orch.RecordAction(ctx, f.donorID, key, models.MeetingCompletedPayload{Notes: "went well"})
	if err != nil {
		t.Fatalf("meeting completion failed: %v", err)
	}
	if state != models.StateScheduled {
		t.Fatalf("meeting completion must leave state scheduled, got %s", state)
	}
}

func TestScheduleRequiresShortlist(t *testing.T) {
	ctx := context.Background()
	key := "curated:clinic"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	_, _, err := f.orch.RecordAction(ctx, f.donorID, key, models.ScheduledPayload{
		MeetingType: "call", ProposedTime: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("expected guard violation scheduling from new, got %v", err)
	}
}

func TestPassedCanReturnToShortlist(t *testing.T) {
	ctx := context.Background()
	key := "curated:clinic"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	if _, _, err := f.orch.RecordAction(ctx, f.donorID, key, models.PassPayload{Reason: "not now"}); err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if st, _ := f.states.Get(ctx, f.donorID, key); st != models.StatePassed {
		t.Fatalf("expected passed, got %s", st)
	}

	_, state, err := f.orch.RecordAction(ctx, f.donorID, key, models.SavePayload{})
	if err != nil || state != models.StateShortlisted {
		t.Fatalf("un-pass failed: state=%s err=%v", state, err)
	}
}

func TestRecordAction_UnknownOpportunity(t *testing.T) {
	f := newFixture(nil, nil)
	_, _, err := f.orch.RecordAction(context.Background(), f.donorID, "curated:ghost", models.SavePayload{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateOffer_MatchModeWithSideEffects(t *testing.T) {
	ctx := context.Background()
	key := "request:school"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	offer, err := f.orch.CreateOffer(ctx, f.donorID, key, OfferInput{
		AnchorAmount: 100000,
		MatchMode:    models.ModeMatch,
	})
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}
	if offer.ChallengeGoal != 100000 || offer.TopUpCap != 100000 || offer.TotalDeployed != 200000 {
		t.Fatalf("offer arithmetic wrong: %+v", offer)
	}
	if offer.Status != models.OfferDraft {
		t.Fatalf("new offers start as draft, got %s", offer.Status)
	}
	if f.collab.notifications != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", f.collab.notifications)
	}
	if f.collab.documents != 1 {
		t.Fatalf("expected exactly 1 draft document, got %d", f.collab.documents)
	}
}

func TestCreateOffer_SideEffectFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	key := "request:school"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)
	f.collab.failWrites = true

	offer, err := f.orch.CreateOffer(ctx, f.donorID, key, OfferInput{
		AnchorAmount: 50000,
		MatchMode:    models.ModeMatch,
	})
	if err != nil {
		t.Fatalf("offer must survive collaborator failures, got %v", err)
	}
	if _, err := f.offers.Get(ctx, offer.ID); err != nil {
		t.Fatalf("offer was rolled back: %v", err)
	}
}

func TestCreateOffer_RemainderNeedsGap(t *testing.T) {
	ctx := context.Background()
	cand := testCandidate("submitted:nogap")
	cand.FundingGap = 0
	f := newFixture([]models.OpportunityCandidate{cand}, nil)

	_, err := f.orch.CreateOffer(ctx, f.donorID, "submitted:nogap", OfferInput{
		AnchorAmount: 50000,
		MatchMode:    models.ModeRemainder,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown gap, got %v", err)
	}
}

func TestCreateOffer_RemainderArithmetic(t *testing.T) {
	ctx := context.Background()
	key := "request:school"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil) // gap 300000

	offer, err := f.orch.CreateOffer(ctx, f.donorID, key, OfferInput{
		AnchorAmount: 100000,
		MatchMode:    models.ModeRemainder,
	})
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}
	if offer.ChallengeGoal != 200000 || offer.TotalDeployed != 300000 {
		t.Fatalf("remainder arithmetic wrong: %+v", offer)
	}
}

func TestAdvanceStage_Ownership(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()
	cand := testCandidate("request:mine")
	cand.Origin = models.OriginRequested
	cand.CreatorID = &creator
	f := newFixture([]models.OpportunityCandidate{cand}, nil)

	// A requestor who did not create the request is rejected.
	stranger := Actor{ID: uuid.New(), Role: RoleRequestor}
	if _, err := f.orch.AdvanceStage(ctx, stranger, f.donorID, "request:mine", models.SavePayload{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-creator, got %v", err)
	}

	// The creator may advance their own request's pair.
	owner := Actor{ID: creator, Role: RoleRequestor}
	state, err := f.orch.AdvanceStage(ctx, owner, f.donorID, "request:mine", models.SavePayload{})
	if err != nil || state != models.StateShortlisted {
		t.Fatalf("creator advance failed: state=%s err=%v", state, err)
	}

	// A donor may only act on their own pairs.
	otherDonor := Actor{ID: uuid.New(), Role: RoleDonor}
	if _, err := f.orch.AdvanceStage(ctx, otherDonor, f.donorID, "request:mine", models.SavePayload{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign donor, got %v", err)
	}
}

func TestAdvanceOffer_ForwardOnly(t *testing.T) {
	ctx := context.Background()
	key := "request:school"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	offer, err := f.orch.CreateOffer(ctx, f.donorID, key, OfferInput{AnchorAmount: 1000, MatchMode: models.ModeMatch})
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}

	if _, err := f.orch.AdvanceOffer(ctx, f.donorID, offer.ID, models.OfferSent); err != nil {
		t.Fatalf("draft -> sent failed: %v", err)
	}
	if _, err := f.orch.AdvanceOffer(ctx, f.donorID, offer.ID, models.OfferDraft); !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("backward move must be rejected, got %v", err)
	}
	if _, err := f.orch.AdvanceOffer(ctx, f.donorID, offer.ID, models.OfferAccepted); err != nil {
		t.Fatalf("sent -> accepted failed: %v", err)
	}
	if _, err := f.orch.AdvanceOffer(ctx, f.donorID, offer.ID, models.OfferDeclined); !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("terminal offers must not change, got %v", err)
	}
	if _, err := f.orch.AdvanceOffer(ctx, uuid.New(), offer.ID, models.OfferExpired); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign donor must be forbidden, got %v", err)
	}
}

func TestReplayMatchesLiveProjection(t *testing.T) {
	ctx := context.Background()
	key := "curated:clinic"
	f := newFixture([]models.OpportunityCandidate{testCandidate(key)}, nil)

	actions := []models.EventPayload{
		models.PassPayload{Reason: "first look"},
		models.SavePayload{},
		models.ScheduledPayload{MeetingType: "video", ProposedTime: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC), OrgResponse: models.OrgResponseAccepted},
		models.MeetingCompletedPayload{},
		models.DiligenceCompletedPayload{Summary: "clean"},
		models.FundedPayload{Amount: 50000},
	}
	for _, action := range actions {
		if _, _, err := f.orch.RecordAction(ctx, f.donorID, key, action); err != nil {
			t.Fatalf("action %s failed: %v", action.EventType(), err)
		}
	}

	live, err := f.states.Get(ctx, f.donorID, key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	replayed, err := f.orch.RebuildState(ctx, f.donorID, key)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if live != replayed {
		t.Fatalf("replay diverged from projection: live=%s replayed=%s", live, replayed)
	}
	if replayed != models.StateFunded {
		t.Fatalf("expected funded, got %s", replayed)
	}
}
