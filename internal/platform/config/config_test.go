package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SERVICE_NAME", "HTTP_PORT", "KAFKA_BROKERS", "PETITION_JUDGES",
		"RECONCILE_BATCH_CAP", "RECONCILE_GROUP_DELAY", "ENABLE_WAREHOUSE_SYNC",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "petitionhub" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ReconcileBatchCap != 100 || cfg.ReconcileGroupDelay != 4*time.Second {
		t.Fatalf("expected reconciliation defaults, got cap=%d delay=%s", cfg.ReconcileBatchCap, cfg.ReconcileGroupDelay)
	}
	if cfg.EnableWarehouseSync || cfg.Judges != nil {
		t.Fatalf("expected warehouse sync off and no judges, got %+v", cfg)
	}
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("PETITION_JUDGES", " judge-a, ,judge-b ")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ENABLE_WAREHOUSE_SYNC", "yes")
	t.Setenv("RECONCILE_GROUP_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Judges) != 2 || cfg.Judges[0] != "judge-a" || cfg.Judges[1] != "judge-b" {
		t.Fatalf("expected trimmed judges, got %v", cfg.Judges)
	}
	if len(cfg.KafkaBrokers) != 2 || !cfg.EnableWarehouseSync {
		t.Fatalf("expected brokers and warehouse sync, got %+v", cfg)
	}
	if cfg.ReconcileGroupDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms delay, got %s", cfg.ReconcileGroupDelay)
	}
}

func TestLoadRejectsWarehouseWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ENABLE_WAREHOUSE_SYNC", "true")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when warehouse sync has no brokers")
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_INT", "ten")
	t.Setenv("X_DURATION", "-5s")
	if !envBool("X_BOOL", true) {
		t.Fatalf("expected bool fallback")
	}
	if envInt("X_INT", 7) != 7 {
		t.Fatalf("expected int fallback")
	}
	if envDuration("X_DURATION", time.Second) != time.Second {
		t.Fatalf("expected duration fallback")
	}
}
