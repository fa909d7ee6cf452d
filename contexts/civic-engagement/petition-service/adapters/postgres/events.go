package postgresadapter

import (
	"context"
	"strings"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const fingerprintLockNamespace = "petition-fingerprint:"

func (r *Repository) CountByFingerprintSince(ctx context.Context, fingerprintID string, since time.Time) (int, error) {
	var count int64
	if err := r.conn(ctx).
		Model(&submissionEventModel{}).
		Where("fingerprint_id = ? AND occurred_at >= ?", strings.TrimSpace(fingerprintID), since.UTC()).
		Count(&count).Error; err != nil {
		return 0, r.logError("petition_repo_count_fingerprint_events_failed", err,
			"fingerprint_id", strings.TrimSpace(fingerprintID),
		)
	}
	return int(count), nil
}

func (r *Repository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int64
	if err := r.conn(ctx).
		Model(&submissionEventModel{}).
		Where("ip_address = ? AND occurred_at >= ?", strings.TrimSpace(ip), since.UTC()).
		Count(&count).Error; err != nil {
		return 0, r.logError("petition_repo_count_ip_events_failed", err)
	}
	return int(count), nil
}

func (r *Repository) AppendSubmissionEvent(ctx context.Context, event entities.SubmissionEvent) error {
	row := submissionEventModel{
		IPAddress:     strings.TrimSpace(event.IPAddress),
		FingerprintID: strings.TrimSpace(event.FingerprintID),
		UserAgent:     strings.TrimSpace(event.UserAgent),
		OccurredAt:    event.OccurredAt.UTC(),
	}
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		return r.logError("petition_repo_append_submission_event_failed", err,
			"fingerprint_id", row.FingerprintID,
		)
	}
	return nil
}

// WithFingerprintLock holds a transaction-scoped advisory lock keyed by the
// fingerprint while fn runs. Event reads and writes made through ctx join
// that transaction.
func (r *Repository) WithFingerprintLock(ctx context.Context, fingerprintID string, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// gorm-postgres-enforcer: allow-raw-sql advisory lock
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", fingerprintLockNamespace+fingerprintID).Error; err != nil {
			return r.logError("petition_repo_fingerprint_lock_failed", err, "fingerprint_id", fingerprintID)
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repository) AppendModerationLog(ctx context.Context, entry entities.ModerationLogEntry) error {
	if strings.TrimSpace(entry.EntryID) == "" {
		entry.EntryID = uuid.NewString()
	}
	row, err := moderationLogModelFromEntity(entry)
	if err != nil {
		return err
	}
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		return r.logError("petition_repo_append_moderation_log_failed", err,
			"petition_id", entry.PetitionID,
			"attempt", entry.Attempt,
		)
	}
	return nil
}
