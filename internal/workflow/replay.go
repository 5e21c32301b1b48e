package workflow

import (
	"context"

	"github.com/david/donorflow/internal/models"
	"github.com/google/uuid"
)

// Replay folds a pair's events oldest-first into the coarse state the live
// projection should hold. The state table is only ever a cache of this fold.
func Replay(events []models.Event) models.State {
	state := models.StateNew
	for _, e := range events {
		switch e.Type {
		case models.EventSave:
			state = models.StateShortlisted
		case models.EventPass:
			state = models.StatePassed
		case models.EventScheduled:
			state = models.StateScheduled
		case models.EventFunded:
			state = models.StateFunded
		}
		// request_info, concierge_review, meeting_completed,
		// diligence_completed and daf_packet_generated refine the record
		// without moving the coarse state.
	}
	return state
}

// RebuildState recomputes a pair's state from its event history.
func (o *Orchestrator) RebuildState(ctx context.Context, donorID uuid.UUID, key string) (models.State, error) {
	events, err := o.Events.ListByPair(ctx, donorID, key)
	if err != nil {
		return "", err
	}
	return Replay(events), nil
}
