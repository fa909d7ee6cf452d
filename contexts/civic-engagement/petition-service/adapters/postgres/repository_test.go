package postgresadapter

import (
	"strings"
	"testing"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(postgres.Open("host=localhost user=petitionhub dbname=petitionhub sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return gdb
}

func TestTransactionReadLocksRow(t *testing.T) {
	gdb := dryRunDB(t)
	sql := gdb.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var row petitionModel
		return lockForUpdate(tx).Where("id = ?", "p-1").First(&row)
	})
	if !strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE") {
		t.Fatalf("expected row lock, got %s", sql)
	}
}

func TestStatusUpdateTouchesOnlyStatus(t *testing.T) {
	gdb := dryRunDB(t)
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	sql := gdb.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return statusUpdate(tx, "p-1", entities.PetitionStatusApproved, now)
	})
	if !strings.HasPrefix(sql, `UPDATE "petitions" SET`) {
		t.Fatalf("expected an update of petitions, got %s", sql)
	}
	for _, column := range []string{`"status"='approved'`, `"updated_at"=`} {
		if !strings.Contains(sql, column) {
			t.Fatalf("expected %s in %s", column, sql)
		}
	}
	for _, column := range []string{`"judge"`, `"message"`, `"name"`, `"region"`} {
		if strings.Contains(sql, column) {
			t.Fatalf("expected %s to be left alone, got %s", column, sql)
		}
	}

	absent := gdb.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return statusUpdate(tx, "p-1", entities.PetitionStatusAbsent, now)
	})
	if !strings.Contains(absent, `"status"=NULL`) {
		t.Fatalf("expected absent status stored as NULL, got %s", absent)
	}
}
