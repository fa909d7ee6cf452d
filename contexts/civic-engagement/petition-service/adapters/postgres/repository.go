package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
	"petitionhub/internal/platform/db"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const moduleName = "civic-engagement/petition-service"

var unresolvedStatuses = []string{"", string(entities.PetitionStatusPending)}

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
	retry  db.RetryPolicy
}

func NewRepository(gdb *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     gdb,
		logger: logger,
		retry: db.RetryPolicy{
			MaxAttempts: db.DefaultTxAttempts,
			Retryable: func(err error) bool {
				return errors.Is(err, domainerrors.ErrTransactionConflict)
			},
		},
	}
}

var (
	_ ports.PetitionReader      = (*Repository)(nil)
	_ ports.UnitOfWork          = (*Repository)(nil)
	_ ports.PetitionMaintenance = (*Repository)(nil)
	_ ports.SubmissionEventLog  = (*Repository)(nil)
	_ ports.ModerationLogStore  = (*Repository)(nil)
	_ ports.PetitionTx          = (*txRepository)(nil)
)

type txKey struct{}

// conn returns the transaction bound to ctx by WithFingerprintLock, or the
// pool otherwise.
func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// RunInTx re-runs fn from scratch on serialization failures, deadlocks and
// failed optimistic version checks.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.PetitionTx) error) error {
	attempt := 0
	err := db.RetryTx(ctx, r.retry, func() error {
		attempt++
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &txRepository{db: tx, parent: r})
		})
	})
	if err != nil && (errors.Is(err, domainerrors.ErrTransactionConflict) || db.IsSerializationFailure(err)) {
		r.logger.Error("petition transaction retries exhausted",
			"event", "petition_repo_tx_conflict_exhausted",
			"module", moduleName,
			"layer", "adapter",
			"attempts", attempt,
			"error", err.Error(),
		)
	}
	return err
}

func (r *Repository) GetPetition(ctx context.Context, petitionID string) (entities.Petition, error) {
	return getPetition(ctx, r.db, r, petitionID)
}

func (r *Repository) GetPetitionByFingerprint(ctx context.Context, fingerprintID string) (entities.Petition, error) {
	var row petitionModel
	err := r.db.WithContext(ctx).
		Where("fingerprint_id = ?", strings.TrimSpace(fingerprintID)).
		Order("created_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Petition{}, domainerrors.ErrPetitionNotFound
		}
		return entities.Petition{}, r.logError("petition_repo_get_by_fingerprint_failed", err,
			"fingerprint_id", strings.TrimSpace(fingerprintID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) FingerprintClaimed(ctx context.Context, fingerprintID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&fingerprintClaimModel{}).
		Where("fingerprint_id = ?", strings.TrimSpace(fingerprintID)).
		Count(&count).Error; err != nil {
		return false, r.logError("petition_repo_fingerprint_lookup_failed", err,
			"fingerprint_id", strings.TrimSpace(fingerprintID),
		)
	}
	return count > 0, nil
}

func (r *Repository) ListPetitions(ctx context.Context, filter ports.PetitionListFilter) ([]entities.Petition, error) {
	tx := r.db.WithContext(ctx).Model(&petitionModel{})
	switch filter.Status {
	case entities.PetitionStatusAbsent:
	case entities.PetitionStatusPending:
		tx = tx.Where("(status IS NULL OR status IN ?)", unresolvedStatuses)
	default:
		tx = tx.Where("status = ?", string(filter.Status))
	}

	if cursor := strings.TrimSpace(filter.Cursor); cursor != "" {
		var anchor petitionModel
		err := r.db.WithContext(ctx).Select("id", "created_at").Where("id = ?", cursor).First(&anchor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domainerrors.ErrInvalidRequest
			}
			return nil, r.logError("petition_repo_list_cursor_failed", err, "cursor", cursor)
		}
		tx = tx.Where("(created_at, id) < (?, ?)", anchor.CreatedAt, anchor.ID)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var rows []petitionModel
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, r.logError("petition_repo_list_failed", err, "status", string(filter.Status))
	}
	return toPetitionEntities(rows), nil
}

func (r *Repository) ListUnresolved(ctx context.Context, limit int) ([]entities.Petition, error) {
	tx := r.db.WithContext(ctx).
		Where("(status IS NULL OR status IN ?)", unresolvedStatuses).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []petitionModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, r.logError("petition_repo_list_unresolved_failed", err, "limit", limit)
	}
	return toPetitionEntities(rows), nil
}

func (r *Repository) CountByStatus(ctx context.Context) (ports.StatusCounts, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&petitionModel{}).
		Select("COALESCE(NULLIF(status, ''), ?) AS status, COUNT(*) AS total", string(entities.PetitionStatusPending)).
		Group("1").
		Scan(&rows).
		Error
	if err != nil {
		return ports.StatusCounts{}, r.logError("petition_repo_count_by_status_failed", err)
	}

	var counts ports.StatusCounts
	for _, row := range rows {
		switch entities.PetitionStatus(row.Status) {
		case entities.PetitionStatusPending:
			counts.Pending += row.Total
		case entities.PetitionStatusApproved:
			counts.Approved += row.Total
		case entities.PetitionStatusRejected:
			counts.Rejected += row.Total
		}
	}
	return counts, nil
}

func (r *Repository) GetFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error) {
	return loadFamily(ctx, r.db, r, family)
}

func (r *Repository) BackfillMissingStatus(ctx context.Context, now time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Model(&petitionModel{}).
		Where("status IS NULL OR status = ''").
		Updates(map[string]any{
			"status":     string(entities.PetitionStatusPending),
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return 0, r.logError("petition_repo_backfill_status_failed", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", moduleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("petition repository operation failed", fields...)
	return err
}

// txRepository is the PetitionTx bound to one gorm transaction.
type txRepository struct {
	db     *gorm.DB
	parent *Repository
}

// GetPetition takes FOR UPDATE on the row so concurrent edits, status writes
// and deletes of one petition serialize on it.
func (t *txRepository) GetPetition(ctx context.Context, petitionID string) (entities.Petition, error) {
	return getPetition(ctx, lockForUpdate(t.db), t.parent, petitionID)
}

func (t *txRepository) InsertPetition(ctx context.Context, petition entities.Petition) error {
	row := petitionModelFromEntity(petition)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return t.parent.logError("petition_repo_insert_failed", err, "petition_id", row.ID)
	}
	return nil
}

func (t *txRepository) UpdatePetition(ctx context.Context, petition entities.Petition) error {
	row := petitionModelFromEntity(petition)
	result := t.db.WithContext(ctx).
		Model(&petitionModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"name":         row.Name,
			"message":      row.Message,
			"organization": row.Organization,
			"judge":        row.Judge,
			"status":       row.Status,
			"updated_at":   row.UpdatedAt,
		})
	if result.Error != nil {
		return t.parent.logError("petition_repo_update_failed", result.Error, "petition_id", row.ID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPetitionNotFound
	}
	return nil
}

func (t *txRepository) UpdatePetitionStatus(
	ctx context.Context,
	petitionID string,
	status entities.PetitionStatus,
	updatedAt time.Time,
) error {
	petitionID = strings.TrimSpace(petitionID)
	result := statusUpdate(t.db.WithContext(ctx), petitionID, status, updatedAt)
	if result.Error != nil {
		return t.parent.logError("petition_repo_update_status_failed", result.Error, "petition_id", petitionID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPetitionNotFound
	}
	return nil
}

func (t *txRepository) DeletePetition(ctx context.Context, petitionID string) error {
	result := t.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(petitionID)).Delete(&petitionModel{})
	if result.Error != nil {
		return t.parent.logError("petition_repo_delete_failed", result.Error, "petition_id", petitionID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPetitionNotFound
	}
	return nil
}

func (t *txRepository) ClaimFingerprint(ctx context.Context, claim entities.FingerprintClaim) error {
	row := fingerprintClaimModel{
		FingerprintID: strings.TrimSpace(claim.FingerprintID),
		PetitionID:    strings.TrimSpace(claim.PetitionID),
		MaskedIP:      claim.MaskedIP,
		CreatedAt:     claim.CreatedAt.UTC(),
	}
	result := t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		if db.IsUniqueViolation(result.Error) {
			return domainerrors.ErrDuplicateSubmission
		}
		return t.parent.logError("petition_repo_claim_fingerprint_failed", result.Error,
			"fingerprint_id", row.FingerprintID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDuplicateSubmission
	}
	return nil
}

func (t *txRepository) ReleaseFingerprint(ctx context.Context, fingerprintID string) error {
	if err := t.db.WithContext(ctx).
		Where("fingerprint_id = ?", strings.TrimSpace(fingerprintID)).
		Delete(&fingerprintClaimModel{}).Error; err != nil {
		return t.parent.logError("petition_repo_release_fingerprint_failed", err, "fingerprint_id", fingerprintID)
	}
	return nil
}

func (t *txRepository) InsertPersonalInfo(ctx context.Context, info entities.PersonalInfo) error {
	row := personalInfoModel{
		ID:         strings.TrimSpace(info.RecordID),
		AgeBracket: info.AgeBracket,
		Gender:     info.Gender,
		Latitude:   info.Latitude,
		Longitude:  info.Longitude,
		Region:     info.Region,
		CreatedAt:  info.CreatedAt.UTC(),
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return t.parent.logError("petition_repo_insert_personal_info_failed", err)
	}
	return nil
}

// IncrementCounter adds amount to one key with a single upsert. The result is
// floored at zero and zero-valued keys are removed from the document.
func (t *txRepository) IncrementCounter(ctx context.Context, family entities.CounterFamily, key string, amount int64) error {
	now := time.Now().UTC()
	// gorm-postgres-enforcer: allow-raw-sql atomic jsonb counter upsert
	err := t.db.WithContext(ctx).Exec(`
INSERT INTO stat_families (family, counts, version, updated_at)
VALUES (@family, CASE WHEN @amount > 0 THEN jsonb_build_object(@key::text, @amount::bigint) ELSE '{}'::jsonb END, 1, @now)
ON CONFLICT (family) DO UPDATE SET
    counts = CASE
        WHEN COALESCE((stat_families.counts->>@key::text)::bigint, 0) + @amount <= 0
            THEN stat_families.counts - @key::text
        ELSE jsonb_set(
            stat_families.counts,
            ARRAY[@key::text],
            to_jsonb(COALESCE((stat_families.counts->>@key::text)::bigint, 0) + @amount)
        )
    END,
    version = stat_families.version + 1,
    updated_at = EXCLUDED.updated_at`,
		map[string]any{
			"family": string(family),
			"key":    key,
			"amount": amount,
			"now":    now,
		},
	).Error
	if err != nil {
		return t.parent.logError("petition_repo_increment_counter_failed", err,
			"family", string(family),
			"key", key,
		)
	}
	return nil
}

func (t *txRepository) LoadFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error) {
	return loadFamily(ctx, t.db, t.parent, family)
}

// StoreFamily writes the document only if its version is unchanged since it
// was loaded. A missing row is created with version 1.
func (t *txRepository) StoreFamily(ctx context.Context, doc entities.FamilyDocument) error {
	now := time.Now().UTC()
	counts := datatypes.NewJSONType(doc.Counts)

	if doc.Version == 0 {
		row := statFamilyModel{
			Family:    string(doc.Family),
			Counts:    counts,
			Version:   1,
			UpdatedAt: now,
		}
		result := t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return t.parent.logError("petition_repo_store_family_insert_failed", result.Error, "family", string(doc.Family))
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrTransactionConflict
		}
		return nil
	}

	result := t.db.WithContext(ctx).
		Model(&statFamilyModel{}).
		Where("family = ? AND version = ?", string(doc.Family), doc.Version).
		Updates(map[string]any{
			"counts":     counts,
			"version":    doc.Version + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		return t.parent.logError("petition_repo_store_family_update_failed", result.Error, "family", string(doc.Family))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrTransactionConflict
	}
	return nil
}

func lockForUpdate(gdb *gorm.DB) *gorm.DB {
	return gdb.Clauses(clause.Locking{Strength: "UPDATE"})
}

// statusUpdate leaves every column but status and updated_at alone. An absent
// status is stored as NULL.
func statusUpdate(gdb *gorm.DB, petitionID string, status entities.PetitionStatus, updatedAt time.Time) *gorm.DB {
	var value any
	if status != entities.PetitionStatusAbsent {
		value = string(status)
	}
	return gdb.Model(&petitionModel{}).
		Where("id = ?", petitionID).
		Updates(map[string]any{
			"status":     value,
			"updated_at": updatedAt.UTC(),
		})
}

func getPetition(ctx context.Context, gdb *gorm.DB, r *Repository, petitionID string) (entities.Petition, error) {
	var row petitionModel
	err := gdb.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(petitionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Petition{}, domainerrors.ErrPetitionNotFound
		}
		return entities.Petition{}, r.logError("petition_repo_get_failed", err, "petition_id", strings.TrimSpace(petitionID))
	}
	return row.toEntity(), nil
}

func loadFamily(ctx context.Context, gdb *gorm.DB, r *Repository, family entities.CounterFamily) (entities.FamilyDocument, error) {
	var row statFamilyModel
	err := gdb.WithContext(ctx).Where("family = ?", string(family)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.FamilyDocument{Family: family, Counts: map[string]int64{}}, nil
		}
		return entities.FamilyDocument{}, r.logError("petition_repo_load_family_failed", err, "family", string(family))
	}
	return row.toEntity(), nil
}
