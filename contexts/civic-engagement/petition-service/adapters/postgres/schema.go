package postgresadapter

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// EnsureSchema creates the petition tables and indexes. Safe to call on every
// start since every statement uses IF NOT EXISTS.
func EnsureSchema(ctx context.Context, db *gorm.DB) error {
	// gorm-postgres-enforcer: allow-raw-sql schema bootstrap DDL
	if err := db.WithContext(ctx).Exec(schema).Error; err != nil {
		return fmt.Errorf("create petition schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS petitions (
    id TEXT PRIMARY KEY,
    fingerprint_id TEXT NOT NULL,
    name TEXT NOT NULL,
    message TEXT NOT NULL,
    organization TEXT NOT NULL DEFAULT '',
    judge TEXT NOT NULL DEFAULT '',
    masked_ip TEXT NOT NULL DEFAULT 'unknown',
    status TEXT CHECK (status IS NULL OR status IN ('', 'pending', 'approved', 'rejected')),
    age_bracket TEXT NOT NULL DEFAULT '',
    gender TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_petitions_status_created_at ON petitions(status, created_at);
CREATE INDEX IF NOT EXISTS idx_petitions_created_at ON petitions(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_petitions_fingerprint_id ON petitions(fingerprint_id);

CREATE TABLE IF NOT EXISTS petition_fingerprints (
    fingerprint_id TEXT PRIMARY KEY,
    petition_id TEXT NOT NULL,
    masked_ip TEXT NOT NULL DEFAULT 'unknown',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS personal_info (
    id TEXT PRIMARY KEY,
    age_bracket TEXT NOT NULL DEFAULT '',
    gender TEXT NOT NULL DEFAULT '',
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    region TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS submission_events (
    id BIGSERIAL PRIMARY KEY,
    ip_address TEXT NOT NULL,
    fingerprint_id TEXT NOT NULL,
    user_agent TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_submission_events_fingerprint ON submission_events(fingerprint_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_submission_events_ip ON submission_events(ip_address, occurred_at);

CREATE TABLE IF NOT EXISTS moderation_logs (
    id TEXT PRIMARY KEY,
    petition_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    organization TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    attempt INTEGER NOT NULL,
    raw_response TEXT NOT NULL DEFAULT '',
    verdict JSONB,
    error TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_moderation_logs_petition ON moderation_logs(petition_id, created_at);

CREATE TABLE IF NOT EXISTS stat_families (
    family TEXT PRIMARY KEY,
    counts JSONB NOT NULL DEFAULT '{}'::jsonb,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
