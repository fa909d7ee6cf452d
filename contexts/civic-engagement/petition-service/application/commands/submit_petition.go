package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/application/admission"
	"petitionhub/contexts/civic-engagement/petition-service/application/stats"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const (
	MaxMessageLength      = 5000
	MaxNameLength         = 100
	MaxOrganizationLength = 200
	warehouseSyncTimeout  = 30 * time.Second
)

// DefaultJudges is the configured set of judges a petition may address.
var DefaultJudges = []string{
	"judge-1", "judge-2", "judge-3", "judge-4",
	"judge-5", "judge-6", "judge-7", "judge-8",
}

// SubmitPetitionCommand carries one create or edit request.
type SubmitPetitionCommand struct {
	Name          string
	Message       string
	Organization  string
	Judge         string
	Latitude      *float64
	Longitude     *float64
	AgeBracket    string
	Gender        string
	FingerprintID string
	ClientIP      string
	UserAgent     string
	IsEdit        bool
	EditID        string
}

type SubmitPetitionResult struct {
	Petition entities.Petition
	Edited   bool
}

// PetitionUseCase runs the submission pipeline: admission, validation,
// region tagging, persistence with counter updates, moderation and
// warehouse forwarding.
type PetitionUseCase struct {
	Limiter    admission.Limiter
	Petitions  ports.PetitionReader
	UnitOfWork ports.UnitOfWork
	Stats      stats.Aggregator
	Classifier ports.PetitionClassifier
	Regions    ports.RegionResolver
	Warehouse  ports.WarehouseSink
	Words      entities.WordFilter
	Judges     []string
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Metrics    ports.Metrics
	Logger     *slog.Logger
}

func (uc PetitionUseCase) Submit(ctx context.Context, cmd SubmitPetitionCommand) (SubmitPetitionResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	metrics := application.ResolveMetrics(uc.Metrics)
	cmd = normalizeCommand(cmd)
	maskedIP := entities.MaskIP(cmd.ClientIP)

	logger.Info("petition submission started",
		"event", "petition_submit_started",
		"module", application.ModuleName,
		"layer", "application",
		"fingerprint_id", cmd.FingerprintID,
		"is_edit", cmd.IsEdit,
		"masked_ip", maskedIP,
	)

	if !cmd.IsEdit {
		decision, err := uc.Limiter.Admit(ctx, cmd.ClientIP, cmd.FingerprintID, cmd.UserAgent)
		if err != nil {
			metrics.ObserveSubmission("limiter_unavailable")
			logger.Error("petition admission check failed",
				"event", "petition_submit_admission_failed",
				"module", application.ModuleName,
				"layer", "application",
				"fingerprint_id", cmd.FingerprintID,
				"error", err.Error(),
			)
			if errors.Is(err, domainerrors.ErrLimiterUnavailable) {
				return SubmitPetitionResult{}, err
			}
			return SubmitPetitionResult{}, fmt.Errorf("%w: %v", domainerrors.ErrLimiterUnavailable, err)
		}
		if !decision.Allowed {
			metrics.ObserveSubmission("rate_limited")
			return SubmitPetitionResult{}, domainerrors.ErrRateLimitExceeded
		}
	}
	// Admitted submissions run to completion; a caller hanging up must not
	// strand a stored petition without its verdict.
	ctx = context.WithoutCancel(ctx)

	if err := uc.validate(cmd); err != nil {
		metrics.ObserveSubmission("invalid")
		return SubmitPetitionResult{}, err
	}

	if !cmd.IsEdit {
		claimed, err := uc.Petitions.FingerprintClaimed(ctx, cmd.FingerprintID)
		if err != nil {
			return SubmitPetitionResult{}, err
		}
		if claimed {
			metrics.ObserveSubmission("duplicate")
			return SubmitPetitionResult{}, domainerrors.ErrDuplicateSubmission
		}
	}

	cmd.Name = uc.Words.Clean(cmd.Name)
	cmd.Organization = uc.Words.Clean(cmd.Organization)
	cmd.Message = uc.Words.Clean(cmd.Message)
	if cmd.Name == "" {
		cmd.Name = "anonymous"
	}

	region := ""
	if cmd.Latitude != nil && cmd.Longitude != nil && uc.Regions != nil {
		if resolved, ok := uc.Regions.ResolveRegion(*cmd.Latitude, *cmd.Longitude); ok {
			region = resolved
		}
	}

	if cmd.IsEdit {
		petition, err := uc.edit(ctx, cmd)
		if err != nil {
			metrics.ObserveSubmission("edit_failed")
			return SubmitPetitionResult{}, err
		}
		metrics.ObserveSubmission("edited")
		return SubmitPetitionResult{Petition: petition, Edited: true}, nil
	}

	petition, err := uc.create(ctx, cmd, maskedIP, region)
	if err != nil {
		metrics.ObserveSubmission("create_failed")
		return SubmitPetitionResult{}, err
	}
	metrics.ObserveSubmission("created")
	return SubmitPetitionResult{Petition: petition}, nil
}

func (uc PetitionUseCase) edit(ctx context.Context, cmd SubmitPetitionCommand) (entities.Petition, error) {
	logger := application.ResolveLogger(uc.Logger)
	var updated entities.Petition
	err := uc.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		current, err := tx.GetPetition(ctx, cmd.EditID)
		if err != nil {
			return err
		}
		if current.FingerprintID != cmd.FingerprintID {
			return domainerrors.ErrPetitionNotFound
		}

		next := current
		next.Name = cmd.Name
		next.Message = cmd.Message
		next.Organization = cmd.Organization
		next.Judge = cmd.Judge
		next.UpdatedAt = uc.now()

		if current.Judge != next.Judge {
			deltas := entities.Diff(current.Dimensions(), next.Dimensions())
			if err := uc.Stats.Apply(ctx, tx, deltas); err != nil {
				return err
			}
		}
		if err := tx.UpdatePetition(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return entities.Petition{}, err
	}

	logger.Info("petition updated",
		"event", "petition_edit_completed",
		"module", application.ModuleName,
		"layer", "application",
		"petition_id", updated.PetitionID,
	)
	return updated, nil
}

func (uc PetitionUseCase) create(
	ctx context.Context,
	cmd SubmitPetitionCommand,
	maskedIP string,
	region string,
) (entities.Petition, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	petitionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Petition{}, err
	}
	petition := entities.Petition{
		PetitionID:    petitionID,
		FingerprintID: cmd.FingerprintID,
		Name:          cmd.Name,
		Message:       cmd.Message,
		Organization:  cmd.Organization,
		Judge:         cmd.Judge,
		MaskedIP:      maskedIP,
		Status:        entities.PetitionStatusPending,
		AgeBracket:    cmd.AgeBracket,
		Gender:        cmd.Gender,
		Region:        region,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	personal := entities.PersonalInfo{
		AgeBracket: cmd.AgeBracket,
		Gender:     cmd.Gender,
		Latitude:   cmd.Latitude,
		Longitude:  cmd.Longitude,
		Region:     region,
		CreatedAt:  now,
	}
	if !personal.Empty() {
		recordID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Petition{}, err
		}
		personal.RecordID = recordID
	}

	err = uc.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		if err := tx.ClaimFingerprint(ctx, entities.FingerprintClaim{
			FingerprintID: petition.FingerprintID,
			PetitionID:    petition.PetitionID,
			MaskedIP:      maskedIP,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		if err := tx.InsertPetition(ctx, petition); err != nil {
			return err
		}
		if personal.RecordID != "" {
			if err := tx.InsertPersonalInfo(ctx, personal); err != nil {
				return err
			}
		}
		return uc.Stats.Apply(ctx, tx, entities.Contribution(petition.Dimensions(), 1))
	})
	if err != nil {
		return entities.Petition{}, err
	}

	logger.Info("petition persisted",
		"event", "petition_create_persisted",
		"module", application.ModuleName,
		"layer", "application",
		"petition_id", petition.PetitionID,
		"region", region,
	)

	petition = uc.moderate(ctx, petition)
	uc.forwardToWarehouse(petition)
	return petition, nil
}

// moderate classifies a freshly persisted petition and records the verdict.
// A failed status write leaves the petition pending for reconciliation.
func (uc PetitionUseCase) moderate(ctx context.Context, petition entities.Petition) entities.Petition {
	if uc.Classifier == nil {
		return petition
	}
	logger := application.ResolveLogger(uc.Logger)
	outcome := uc.Classifier.Classify(ctx, petition)
	if outcome.KeepPending {
		return petition
	}

	status := outcome.Verdict.Status()
	var resolved entities.Petition
	err := uc.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		current, err := tx.GetPetition(ctx, petition.PetitionID)
		if err != nil {
			return err
		}
		if current.Status.Unresolved() {
			current.Status = status
			current.UpdatedAt = uc.now()
			if err := tx.UpdatePetitionStatus(ctx, current.PetitionID, current.Status, current.UpdatedAt); err != nil {
				return err
			}
		}
		resolved = current
		return nil
	})
	if err != nil {
		logger.Warn("petition verdict could not be stored",
			"event", "petition_create_verdict_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"petition_id", petition.PetitionID,
			"error", err.Error(),
		)
		return petition
	}
	return resolved
}

func (uc PetitionUseCase) forwardToWarehouse(petition entities.Petition) {
	if uc.Warehouse == nil {
		return
	}
	logger := application.ResolveLogger(uc.Logger)
	metrics := application.ResolveMetrics(uc.Metrics)
	record := entities.NewWarehouseRecord(petition)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), warehouseSyncTimeout)
		defer cancel()
		if err := uc.Warehouse.SyncPetition(ctx, record); err != nil {
			metrics.ObserveWarehouseSync(false)
			logger.Error("warehouse sync failed",
				"event", "petition_warehouse_sync_failed",
				"module", application.ModuleName,
				"layer", "application",
				"petition_id", record.PetitionID,
				"error", err.Error(),
			)
			return
		}
		metrics.ObserveWarehouseSync(true)
	}()
}

func (uc PetitionUseCase) validate(cmd SubmitPetitionCommand) error {
	switch {
	case cmd.Message == "":
		return fmt.Errorf("%w: message is required", domainerrors.ErrInvalidSubmission)
	case cmd.FingerprintID == "":
		return fmt.Errorf("%w: petitionId is required", domainerrors.ErrInvalidSubmission)
	case utf8.RuneCountInString(cmd.Message) > MaxMessageLength:
		return fmt.Errorf("%w: message is too long", domainerrors.ErrInvalidSubmission)
	case utf8.RuneCountInString(cmd.Name) > MaxNameLength:
		return fmt.Errorf("%w: name is too long", domainerrors.ErrInvalidSubmission)
	case utf8.RuneCountInString(cmd.Organization) > MaxOrganizationLength:
		return fmt.Errorf("%w: organization is too long", domainerrors.ErrInvalidSubmission)
	case cmd.IsEdit && cmd.EditID == "":
		return fmt.Errorf("%w: editId is required for edits", domainerrors.ErrInvalidSubmission)
	case (cmd.Latitude == nil) != (cmd.Longitude == nil):
		return fmt.Errorf("%w: latitude and longitude must be sent together", domainerrors.ErrInvalidSubmission)
	}
	if cmd.Latitude != nil {
		if *cmd.Latitude < -90 || *cmd.Latitude > 90 || *cmd.Longitude < -180 || *cmd.Longitude > 180 {
			return fmt.Errorf("%w: coordinates out of range", domainerrors.ErrInvalidSubmission)
		}
	}
	if cmd.Judge != "" && !contains(uc.judges(), cmd.Judge) {
		return fmt.Errorf("%w: unknown judge", domainerrors.ErrInvalidSubmission)
	}
	for _, value := range []string{cmd.AgeBracket, cmd.Gender, cmd.Judge} {
		if strings.Contains(value, "_") {
			return fmt.Errorf("%w: dimension values must not contain '_'", domainerrors.ErrInvalidSubmission)
		}
	}
	return nil
}

func (uc PetitionUseCase) judges() []string {
	if len(uc.Judges) == 0 {
		return DefaultJudges
	}
	return uc.Judges
}

func (uc PetitionUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeCommand(cmd SubmitPetitionCommand) SubmitPetitionCommand {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Message = strings.TrimSpace(cmd.Message)
	cmd.Organization = strings.TrimSpace(cmd.Organization)
	cmd.Judge = strings.TrimSpace(cmd.Judge)
	cmd.AgeBracket = strings.TrimSpace(cmd.AgeBracket)
	cmd.Gender = strings.TrimSpace(cmd.Gender)
	cmd.FingerprintID = strings.TrimSpace(cmd.FingerprintID)
	cmd.ClientIP = strings.TrimSpace(cmd.ClientIP)
	cmd.UserAgent = strings.TrimSpace(cmd.UserAgent)
	cmd.EditID = strings.TrimSpace(cmd.EditID)
	if cmd.ClientIP == "" {
		cmd.ClientIP = entities.UnknownIP
	}
	return cmd
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
