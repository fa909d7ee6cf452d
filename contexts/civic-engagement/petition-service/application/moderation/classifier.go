package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

// DefaultRetryDelays are the waits before attempts 2 and 3 after the model
// signals rate limiting.
var DefaultRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second}

// Classifier runs one moderation classification with bounded retries and
// writes one audit log entry per attempt.
type Classifier struct {
	Model       ports.ContentClassifier
	Logs        ports.ModerationLogStore
	Sleeper     ports.Sleeper
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Purpose     string
	RetryDelays []time.Duration
	Metrics     ports.Metrics
	Logger      *slog.Logger
}

var _ ports.PetitionClassifier = Classifier{}

// Classify never returns an error. Anything short of a parsed verdict leaves
// the petition pending for a later reconciliation pass.
func (c Classifier) Classify(ctx context.Context, petition entities.Petition) entities.ModerationOutcome {
	logger := application.ResolveLogger(c.Logger)
	metrics := application.ResolveMetrics(c.Metrics)
	if c.Model == nil {
		return entities.ModerationOutcome{KeepPending: true, Err: fmt.Errorf("%w: no model configured", domainerrors.ErrModerationFatal)}
	}

	prompt := BuildPrompt(c.Purpose, petition)
	delays := c.retryDelays()
	maxAttempts := len(delays) + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := c.Model.ClassifyContent(ctx, prompt)
		if err != nil {
			c.appendLog(ctx, petition, attempt, raw, nil, err)
			if !errors.Is(err, domainerrors.ErrModelRateLimited) {
				metrics.ObserveModerationAttempt("error")
				logger.Error("moderation classification failed",
					"event", "petition_moderation_failed",
					"module", application.ModuleName,
					"layer", "application",
					"petition_id", petition.PetitionID,
					"attempt", attempt,
					"error", err.Error(),
				)
				return entities.ModerationOutcome{
					KeepPending: true,
					Attempts:    attempt,
					Err:         fmt.Errorf("%w: %v", domainerrors.ErrModerationFatal, err),
				}
			}

			metrics.ObserveModerationAttempt("rate_limited")
			if attempt == maxAttempts {
				break
			}
			logger.Warn("moderation model rate limited, retrying",
				"event", "petition_moderation_rate_limited",
				"module", application.ModuleName,
				"layer", "application",
				"petition_id", petition.PetitionID,
				"attempt", attempt,
				"retry_in", delays[attempt-1].String(),
			)
			if err := c.sleep(ctx, delays[attempt-1]); err != nil {
				return entities.ModerationOutcome{KeepPending: true, Attempts: attempt, Err: err}
			}
			continue
		}

		verdict, err := ParseVerdict(raw)
		if err != nil {
			c.appendLog(ctx, petition, attempt, raw, nil, err)
			metrics.ObserveModerationAttempt("unparsable")
			logger.Warn("moderation response could not be parsed",
				"event", "petition_moderation_unparsable",
				"module", application.ModuleName,
				"layer", "application",
				"petition_id", petition.PetitionID,
				"attempt", attempt,
				"error", err.Error(),
			)
			return entities.ModerationOutcome{KeepPending: true, Attempts: attempt, Err: err}
		}

		c.appendLog(ctx, petition, attempt, raw, &verdict, nil)
		metrics.ObserveModerationAttempt("verdict")
		logger.Info("moderation verdict received",
			"event", "petition_moderation_verdict",
			"module", application.ModuleName,
			"layer", "application",
			"petition_id", petition.PetitionID,
			"attempt", attempt,
			"is_abusive", verdict.IsAbusive,
			"confidence", verdict.Confidence,
		)
		return entities.ModerationOutcome{Verdict: verdict, Attempts: attempt}
	}

	logger.Warn("moderation retries exhausted",
		"event", "petition_moderation_retries_exhausted",
		"module", application.ModuleName,
		"layer", "application",
		"petition_id", petition.PetitionID,
		"attempts", maxAttempts,
	)
	return entities.ModerationOutcome{
		KeepPending: true,
		Attempts:    maxAttempts,
		Err:         domainerrors.ErrModelRateLimited,
	}
}

func (c Classifier) appendLog(
	ctx context.Context,
	petition entities.Petition,
	attempt int,
	raw string,
	verdict *entities.Verdict,
	cause error,
) {
	if c.Logs == nil {
		return
	}
	entry := entities.ModerationLogEntry{
		PetitionID:   petition.PetitionID,
		Name:         petition.Name,
		Organization: petition.Organization,
		Message:      petition.Message,
		Attempt:      attempt,
		RawResponse:  raw,
		Verdict:      verdict,
		Model:        c.Model.ModelName(),
		CreatedAt:    c.now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if c.IDGen != nil {
		if id, err := c.IDGen.NewID(ctx); err == nil {
			entry.EntryID = id
		}
	}
	if err := c.Logs.AppendModerationLog(ctx, entry); err != nil {
		application.ResolveLogger(c.Logger).Error("moderation log write failed",
			"event", "petition_moderation_log_failed",
			"module", application.ModuleName,
			"layer", "application",
			"petition_id", petition.PetitionID,
			"attempt", attempt,
			"error", err.Error(),
		)
	}
}

func (c Classifier) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleeper != nil {
		return c.Sleeper.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c Classifier) retryDelays() []time.Duration {
	if len(c.RetryDelays) == 0 {
		return DefaultRetryDelays
	}
	return c.RetryDelays
}

func (c Classifier) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
