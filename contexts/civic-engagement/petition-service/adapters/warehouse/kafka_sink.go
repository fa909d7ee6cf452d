package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
	"petitionhub/internal/shared/events"

	cb "github.com/sony/gobreaker"
)

// Publisher is the slice of internal/platform/messaging.Kafka the sink needs.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte) error
}

var ErrSinkDisabled = errors.New("warehouse sync disabled")

// KafkaSink forwards petition rows to the analytics warehouse topic, wrapped
// in the shared event envelope. A circuit breaker stops hammering the broker while it is unavailable.
type KafkaSink struct {
	publisher Publisher
	breaker   *cb.CircuitBreaker
	logger    *slog.Logger
}

var _ ports.WarehouseSink = (*KafkaSink)(nil)

func NewKafkaSink(publisher Publisher, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &KafkaSink{publisher: publisher, logger: logger}
	sink.breaker = cb.NewCircuitBreaker(cb.Settings{
		Name:        "petition-warehouse",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from cb.State, to cb.State) {
			logger.Warn("warehouse circuit state changed",
				"event", "petition_warehouse_circuit_state",
				"module", "civic-engagement/petition-service",
				"layer", "adapter",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return sink
}

func (s *KafkaSink) SyncPetition(ctx context.Context, record entities.WarehouseRecord) error {
	if s == nil || s.publisher == nil {
		return ErrSinkDisabled
	}
	envelope := events.NewEnvelope(
		events.PetitionSyncedEventType,
		"petition-service",
		"petition",
		record.PetitionID,
		record,
		time.Now(),
	)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode warehouse record: %w", err)
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.publisher.Publish(ctx, []byte(record.PetitionID), payload)
	})
	if err != nil {
		return fmt.Errorf("warehouse sync %s: %w", record.PetitionID, err)
	}
	return nil
}

func (s *KafkaSink) State() cb.State {
	return s.breaker.State()
}
