package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const (
	DefaultFingerprintLimit  = 3
	DefaultFingerprintWindow = 24 * time.Hour
	DefaultIPLimit           = 10
	DefaultIPWindow          = time.Hour
)

// Decision is the admission result for one submission attempt.
type Decision struct {
	Allowed          bool
	FingerprintCount int
	IPCount          int
	IPOverLimit      bool
}

// Limiter admits submissions per fingerprint. The fingerprint budget is
// authoritative; the IP budget only produces a warning because shared
// networks put many legitimate submitters behind one address.
type Limiter struct {
	Events            ports.SubmissionEventLog
	Clock             ports.Clock
	FingerprintLimit  int
	FingerprintWindow time.Duration
	IPLimit           int
	IPWindow          time.Duration
	Logger            *slog.Logger
}

// CheckAdmission evaluates both budgets without recording anything.
// A failing event query returns ErrLimiterUnavailable; the limiter never fails open.
func (l Limiter) CheckAdmission(ctx context.Context, ip string, fingerprintID string) (Decision, error) {
	logger := application.ResolveLogger(l.Logger)
	ip = strings.TrimSpace(ip)
	fingerprintID = strings.TrimSpace(fingerprintID)
	now := l.now()

	ipCount, err := l.Events.CountByIPSince(ctx, ip, now.Add(-l.ipWindow()))
	if err != nil {
		return Decision{}, fmt.Errorf("%w: count ip events: %v", domainerrors.ErrLimiterUnavailable, err)
	}
	decision := Decision{IPCount: ipCount}
	if ipCount >= l.ipLimit() {
		decision.IPOverLimit = true
		logger.Warn("ip submission budget exceeded",
			"event", "petition_admission_ip_budget_exceeded",
			"module", application.ModuleName,
			"layer", "application",
			"ip_events", ipCount,
			"ip_limit", l.ipLimit(),
		)
	}

	fingerprintCount, err := l.Events.CountByFingerprintSince(ctx, fingerprintID, now.Add(-l.fingerprintWindow()))
	if err != nil {
		return Decision{}, fmt.Errorf("%w: count fingerprint events: %v", domainerrors.ErrLimiterUnavailable, err)
	}
	decision.FingerprintCount = fingerprintCount
	decision.Allowed = fingerprintCount < l.fingerprintLimit()
	if !decision.Allowed {
		logger.Info("fingerprint submission budget exhausted",
			"event", "petition_admission_denied",
			"module", application.ModuleName,
			"layer", "application",
			"fingerprint_id", fingerprintID,
			"fingerprint_events", fingerprintCount,
		)
	}
	return decision, nil
}

// Admit checks and, when allowed, records the submission event while holding
// the fingerprint lock, so concurrent attempts for one fingerprint cannot all
// pass the check before any of them is recorded.
func (l Limiter) Admit(ctx context.Context, ip string, fingerprintID string, userAgent string) (Decision, error) {
	var decision Decision
	err := l.Events.WithFingerprintLock(ctx, strings.TrimSpace(fingerprintID), func(ctx context.Context) error {
		var err error
		decision, err = l.CheckAdmission(ctx, ip, fingerprintID)
		if err != nil || !decision.Allowed {
			return err
		}
		if err := l.Events.AppendSubmissionEvent(ctx, entities.SubmissionEvent{
			IPAddress:     strings.TrimSpace(ip),
			FingerprintID: strings.TrimSpace(fingerprintID),
			UserAgent:     strings.TrimSpace(userAgent),
			OccurredAt:    l.now(),
		}); err != nil {
			return fmt.Errorf("%w: record submission event: %v", domainerrors.ErrLimiterUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (l Limiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (l Limiter) fingerprintLimit() int {
	if l.FingerprintLimit <= 0 {
		return DefaultFingerprintLimit
	}
	return l.FingerprintLimit
}

func (l Limiter) fingerprintWindow() time.Duration {
	if l.FingerprintWindow <= 0 {
		return DefaultFingerprintWindow
	}
	return l.FingerprintWindow
}

func (l Limiter) ipLimit() int {
	if l.IPLimit <= 0 {
		return DefaultIPLimit
	}
	return l.IPLimit
}

func (l Limiter) ipWindow() time.Duration {
	if l.IPWindow <= 0 {
		return DefaultIPWindow
	}
	return l.IPWindow
}
