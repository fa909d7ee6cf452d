package stats

import (
	"context"
	"fmt"
	"log/slog"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

// Aggregator applies counter deltas inside the caller's transaction.
type Aggregator struct {
	Logger *slog.Logger
}

// Apply writes every delta of one petition mutation. Atomic families get one
// increment per key; read-modify-write families are loaded once, changed in
// memory and stored back once.
func (a Aggregator) Apply(ctx context.Context, tx ports.PetitionTx, deltas []entities.CounterDelta) error {
	logger := application.ResolveLogger(a.Logger)
	grouped, order := entities.GroupByFamily(entities.Merge(deltas))

	for _, family := range order {
		familyDeltas := grouped[family]
		switch family.Kind() {
		case entities.FamilyKindReadModifyWrite:
			doc, err := tx.LoadFamily(ctx, family)
			if err != nil {
				return fmt.Errorf("load counter family %s: %w", family, err)
			}
			if floored := doc.Apply(familyDeltas); len(floored) > 0 {
				logger.Warn("counter decrement floored at zero",
					"event", "petition_stats_counter_floored",
					"module", application.ModuleName,
					"layer", "application",
					"family", string(family),
					"keys", floored,
				)
			}
			if err := tx.StoreFamily(ctx, doc); err != nil {
				return fmt.Errorf("store counter family %s: %w", family, err)
			}
		default:
			for _, delta := range familyDeltas {
				if err := tx.IncrementCounter(ctx, family, delta.Key, delta.Amount); err != nil {
					return fmt.Errorf("increment counter %s/%s: %w", family, delta.Key, err)
				}
			}
		}
	}
	return nil
}
