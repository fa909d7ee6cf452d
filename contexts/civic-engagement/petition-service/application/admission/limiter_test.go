package admission_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/adapters/memory"
	"petitionhub/contexts/civic-engagement/petition-service/application/admission"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
)

func newLimiter() (admission.Limiter, *memory.Store) {
	store := memory.NewStore()
	store.SetNow(time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))
	return admission.Limiter{Events: store, Clock: store}, store
}

func TestFourthSubmissionFromFingerprintIsDenied(t *testing.T) {
	limiter, store := newLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Admit(ctx, fmt.Sprintf("198.51.100.%d", i), "fp-1", "ua")
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
		store.Advance(time.Hour)
	}

	decision, err := limiter.Admit(ctx, "203.0.113.200", "fp-1", "ua")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if decision.Allowed || decision.FingerprintCount != 3 {
		t.Fatalf("expected denial after 3 events, got %+v", decision)
	}

	store.Advance(24 * time.Hour)
	decision, err = limiter.Admit(ctx, "203.0.113.200", "fp-1", "ua")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected admission once the window has passed, got %+v", decision)
	}
}

func TestBusyIPIsOnlyWarned(t *testing.T) {
	limiter, _ := newLimiter()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := limiter.Admit(ctx, "203.0.113.7", fmt.Sprintf("fp-%d", i), "ua"); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	decision, err := limiter.Admit(ctx, "203.0.113.7", "fp-new", "ua")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !decision.Allowed || !decision.IPOverLimit || decision.IPCount != 10 {
		t.Fatalf("expected allowed with ip warning, got %+v", decision)
	}
}

func TestDeniedAttemptIsNotRecorded(t *testing.T) {
	limiter, _ := newLimiter()
	limiter.FingerprintLimit = 1
	ctx := context.Background()

	if _, err := limiter.Admit(ctx, "10.0.0.1", "fp-1", "ua"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	for i := 0; i < 2; i++ {
		decision, err := limiter.Admit(ctx, "10.0.0.1", "fp-1", "ua")
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if decision.Allowed || decision.FingerprintCount != 1 {
			t.Fatalf("expected denied attempts to leave the count at 1, got %+v", decision)
		}
	}
}

func TestLimiterFailsClosed(t *testing.T) {
	limiter, store := newLimiter()
	store.SetEventLogError(errors.New("connection reset"))

	_, err := limiter.Admit(context.Background(), "10.0.0.1", "fp-1", "ua")
	if !errors.Is(err, domainerrors.ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable, got %v", err)
	}
}

func TestConcurrentAdmissionsRespectBudget(t *testing.T) {
	limiter, _ := newLimiter()
	ctx := context.Background()

	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			decision, err := limiter.Admit(ctx, "10.0.0.1", "fp-race", "ua")
			results <- err == nil && decision.Allowed
		}()
	}
	allowed := 0
	for i := 0; i < 10; i++ {
		if <-results {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected exactly 3 concurrent admissions, got %d", allowed)
	}
}
