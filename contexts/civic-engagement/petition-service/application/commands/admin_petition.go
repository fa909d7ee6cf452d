package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/application/stats"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

// AdminUseCase holds the administrator write operations.
type AdminUseCase struct {
	UnitOfWork  ports.UnitOfWork
	Maintenance ports.PetitionMaintenance
	Stats       stats.Aggregator
	Clock       ports.Clock
	Logger      *slog.Logger
}

// DeletePetition removes a petition together with its fingerprint claim and
// reverses its counter contribution in the same transaction.
func (uc AdminUseCase) DeletePetition(ctx context.Context, petitionID string) error {
	petitionID = strings.TrimSpace(petitionID)
	if petitionID == "" {
		return domainerrors.ErrInvalidRequest
	}

	var deleted entities.Petition
	err := uc.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		petition, err := tx.GetPetition(ctx, petitionID)
		if err != nil {
			return err
		}
		if err := uc.Stats.Apply(ctx, tx, entities.Contribution(petition.Dimensions(), -1)); err != nil {
			return err
		}
		if err := tx.ReleaseFingerprint(ctx, petition.FingerprintID); err != nil {
			return err
		}
		if err := tx.DeletePetition(ctx, petition.PetitionID); err != nil {
			return err
		}
		deleted = petition
		return nil
	})
	if err != nil {
		return err
	}

	application.ResolveLogger(uc.Logger).Info("petition deleted",
		"event", "petition_admin_deleted",
		"module", application.ModuleName,
		"layer", "application",
		"petition_id", deleted.PetitionID,
		"fingerprint_id", deleted.FingerprintID,
	)
	return nil
}

func (uc AdminUseCase) SetStatus(ctx context.Context, petitionID string, rawStatus string) error {
	petitionID = strings.TrimSpace(petitionID)
	status, ok := entities.ParsePetitionStatus(rawStatus)
	if petitionID == "" {
		return domainerrors.ErrInvalidRequest
	}
	if !ok {
		return domainerrors.ErrInvalidStatus
	}

	err := uc.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		if _, err := tx.GetPetition(ctx, petitionID); err != nil {
			return err
		}
		return tx.UpdatePetitionStatus(ctx, petitionID, status, uc.now())
	})
	if err != nil {
		return err
	}

	application.ResolveLogger(uc.Logger).Info("petition status changed",
		"event", "petition_admin_status_changed",
		"module", application.ModuleName,
		"layer", "application",
		"petition_id", petitionID,
		"status", string(status),
	)
	return nil
}

// NormalizeStatuses backfills pending on legacy petitions stored without a status.
func (uc AdminUseCase) NormalizeStatuses(ctx context.Context) (int, error) {
	if uc.Maintenance == nil {
		return 0, nil
	}
	updated, err := uc.Maintenance.BackfillMissingStatus(ctx, uc.now())
	if err != nil {
		return 0, err
	}
	application.ResolveLogger(uc.Logger).Info("petition statuses normalized",
		"event", "petition_admin_status_backfilled",
		"module", application.ModuleName,
		"layer", "application",
		"updated_count", updated,
	)
	return updated, nil
}

func (uc AdminUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
