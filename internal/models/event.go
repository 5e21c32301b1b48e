package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates event payloads.
type EventType string

const (
	EventSave               EventType = "save"
	EventPass               EventType = "pass"
	EventRequestInfo        EventType = "request_info"
	EventConciergeReview    EventType = "concierge_review"
	EventScheduled          EventType = "scheduled"
	EventMeetingCompleted   EventType = "meeting_completed"
	EventDiligenceCompleted EventType = "diligence_completed"
	EventFunded             EventType = "funded"
	EventDAFPacketGenerated EventType = "daf_packet_generated"
)

// SourceConcierge marks events written by the automated review pass, as
// opposed to explicit donor actions.
const SourceConcierge = "concierge"

// EventPayload is the tagged union of per-type event metadata. One struct
// per event type instead of an open-ended map, so consumers never guess
// shapes out of raw JSON.
type EventPayload interface {
	EventType() EventType
}

type SavePayload struct {
	Source string `json:"source,omitempty"`
}

func (SavePayload) EventType() EventType { return EventSave }

type PassPayload struct {
	Source string `json:"source,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (PassPayload) EventType() EventType { return EventPass }

type RequestInfoPayload struct {
	Source string   `json:"source,omitempty"`
	Tier   InfoTier `json:"tier"`
	Reason string   `json:"reason,omitempty"`
}

func (RequestInfoPayload) EventType() EventType { return EventRequestInfo }

// ConciergeReviewPayload annotates a matched candidate that needs no further
// information; the pair stays in discovery.
type ConciergeReviewPayload struct {
	Source string `json:"source"`
	Reason string `json:"reason,omitempty"`
}

func (ConciergeReviewPayload) EventType() EventType { return EventConciergeReview }

// ScheduledPayload records a proposed (or re-proposed) meeting. OrgResponse
// is empty until the organization answers; "accepted" unlocks meeting
// completion.
type ScheduledPayload struct {
	MeetingType  string    `json:"meeting_type"`
	ProposedTime time.Time `json:"proposed_time"`
	Location     string    `json:"location,omitempty"`
	OrgResponse  string    `json:"org_response,omitempty"`
}

func (ScheduledPayload) EventType() EventType { return EventScheduled }

const OrgResponseAccepted = "accepted"

type MeetingCompletedPayload struct {
	Notes string `json:"notes,omitempty"`
}

func (MeetingCompletedPayload) EventType() EventType { return EventMeetingCompleted }

type DiligenceCompletedPayload struct {
	Summary string `json:"summary,omitempty"`
}

func (DiligenceCompletedPayload) EventType() EventType { return EventDiligenceCompleted }

type FundedPayload struct {
	Amount float64 `json:"amount,omitempty"`
}

func (FundedPayload) EventType() EventType { return EventFunded }

type DAFPacketGeneratedPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (DAFPacketGeneratedPayload) EventType() EventType { return EventDAFPacketGenerated }

// Event is append-only and immutable once written. Corrections are new
// events; there is no update or delete.
type Event struct {
	ID             uuid.UUID    `json:"id"`
	DonorID        uuid.UUID    `json:"donor_id"`
	OpportunityKey string       `json:"opportunity_key"`
	Type           EventType    `json:"type"`
	Payload        EventPayload `json:"payload"`
	CreatedAt      time.Time    `json:"created_at"`
}

// DecodeEventPayload unmarshals raw JSON into the concrete payload struct
// for the given type.
func DecodeEventPayload(typ EventType, raw []byte) (EventPayload, error) {
	var target EventPayload
	switch typ {
	case EventSave:
		target = &SavePayload{}
	case EventPass:
		target = &PassPayload{}
	case EventRequestInfo:
		target = &RequestInfoPayload{}
	case EventConciergeReview:
		target = &ConciergeReviewPayload{}
	case EventScheduled:
		target = &ScheduledPayload{}
	case EventMeetingCompleted:
		target = &MeetingCompletedPayload{}
	case EventDiligenceCompleted:
		target = &DiligenceCompletedPayload{}
	case EventFunded:
		target = &FundedPayload{}
	case EventDAFPacketGenerated:
		target = &DAFPacketGeneratedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", typ)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
	}

	// Return the value, not the pointer, so payloads compare by value in tests.
	switch p := target.(type) {
	case *SavePayload:
		return *p, nil
	case *PassPayload:
		return *p, nil
	case *RequestInfoPayload:
		return *p, nil
	case *ConciergeReviewPayload:
		return *p, nil
	case *ScheduledPayload:
		return *p, nil
	case *MeetingCompletedPayload:
		return *p, nil
	case *DiligenceCompletedPayload:
		return *p, nil
	case *FundedPayload:
		return *p, nil
	case *DAFPacketGeneratedPayload:
		return *p, nil
	}
	return target, nil
}

// EncodeEventPayload marshals a payload for storage.
func EncodeEventPayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	return raw, nil
}
