package events

import (
	"time"

	"github.com/google/uuid"
)

const PetitionSyncedEventType = "petition.warehouse_synced"

// Envelope wraps every record published to the message bus.
type Envelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SourceService  string    `json:"source_service"`
	OccurredAtUTC  time.Time `json:"occurred_at_utc"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	PayloadVersion int       `json:"payload_version"`
	Payload        any       `json:"payload"`
}

// NewEnvelope stamps a fresh event id and the UTC occurrence time.
func NewEnvelope(eventType string, source string, entityType string, entityID string, payload any, now time.Time) Envelope {
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		SourceService:  source,
		OccurredAtUTC:  now.UTC(),
		EntityType:     entityType,
		EntityID:       entityID,
		PayloadVersion: 1,
		Payload:        payload,
	}
}
