package events

import (
	"testing"
	"time"
)

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	first := NewEnvelope(PetitionSyncedEventType, "petition-service", "petition", "ptn-1", map[string]string{"a": "b"}, now)
	second := NewEnvelope(PetitionSyncedEventType, "petition-service", "petition", "ptn-1", nil, now)

	if first.EventID == "" || first.EventID == second.EventID {
		t.Fatalf("expected unique event ids, got %q and %q", first.EventID, second.EventID)
	}
	if first.OccurredAtUTC.Location() != time.UTC || first.OccurredAtUTC.Hour() != 0 {
		t.Fatalf("expected UTC timestamp, got %s", first.OccurredAtUTC)
	}
	if first.PayloadVersion != 1 || first.EntityID != "ptn-1" {
		t.Fatalf("unexpected envelope %+v", first)
	}
}
