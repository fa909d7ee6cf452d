package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	application "petitionhub/contexts/civic-engagement/petition-service/application"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const (
	DefaultBatchCap   = 100
	DefaultGroupSize  = 3
	DefaultGroupDelay = 4 * time.Second
	DefaultLockTTL    = 30 * time.Minute
)

type ReconciliationReport struct {
	ProcessedCount int
	HasMorePending bool
	Approved       int
	Rejected       int
	KeptPending    int
}

// ReconciliationJob re-classifies unresolved petitions under a paced call
// budget and commits every verdict in one transaction.
type ReconciliationJob struct {
	Petitions  ports.PetitionReader
	UnitOfWork ports.UnitOfWork
	Classifier ports.PetitionClassifier
	Sleeper    ports.Sleeper
	Lock       ports.ReconciliationLock
	Clock      ports.Clock
	BatchCap   int
	GroupSize  int
	GroupDelay time.Duration
	LockTTL    time.Duration
	Disabled   bool
	Metrics    ports.Metrics
	Logger     *slog.Logger
}

func (j ReconciliationJob) RunOnce(ctx context.Context) (ReconciliationReport, error) {
	logger := application.ResolveLogger(j.Logger)
	if j.Disabled {
		logger.Info("petition reconciliation disabled by feature flag",
			"event", "petition_reconciliation_disabled",
			"module", application.ModuleName,
			"layer", "worker",
		)
		return ReconciliationReport{}, nil
	}

	if j.Lock != nil {
		release, err := j.Lock.Acquire(ctx, j.lockTTL())
		if errors.Is(err, domainerrors.ErrLockHeld) {
			logger.Info("petition reconciliation already running elsewhere",
				"event", "petition_reconciliation_lock_held",
				"module", application.ModuleName,
				"layer", "worker",
			)
			return ReconciliationReport{HasMorePending: true}, nil
		}
		if err != nil {
			return ReconciliationReport{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("petition reconciliation lock release failed",
					"event", "petition_reconciliation_lock_release_failed",
					"module", application.ModuleName,
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}()
	}

	batchCap := j.batchCap()
	items, err := j.Petitions.ListUnresolved(ctx, batchCap+1)
	if err != nil {
		logger.Error("petition reconciliation list failed",
			"event", "petition_reconciliation_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return ReconciliationReport{}, err
	}

	report := ReconciliationReport{}
	if len(items) > batchCap {
		items = items[:batchCap]
		report.HasMorePending = true
	}
	if len(items) == 0 {
		application.ResolveMetrics(j.Metrics).ObserveReconciliation(0, false)
		return report, nil
	}

	outcomes, classified, err := j.classifyInGroups(ctx, items)
	if err != nil {
		logger.Warn("petition reconciliation interrupted, keeping verdicts obtained so far",
			"event", "petition_reconciliation_interrupted",
			"module", application.ModuleName,
			"layer", "worker",
			"classified_count", classified,
			"batch_size", len(items),
			"error", err.Error(),
		)
		report.HasMorePending = true
		items, outcomes = items[:classified], outcomes[:classified]
	}

	// Verdicts already paid for are committed even when ctx has ended.
	if err := j.commit(context.WithoutCancel(ctx), items, outcomes, &report); err != nil {
		logger.Error("petition reconciliation commit failed",
			"event", "petition_reconciliation_commit_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return ReconciliationReport{}, err
	}
	report.ProcessedCount = len(items)

	application.ResolveMetrics(j.Metrics).ObserveReconciliation(report.ProcessedCount, report.HasMorePending)
	logger.Info("petition reconciliation pass completed",
		"event", "petition_reconciliation_completed",
		"module", application.ModuleName,
		"layer", "worker",
		"processed_count", report.ProcessedCount,
		"approved", report.Approved,
		"rejected", report.Rejected,
		"kept_pending", report.KeptPending,
		"has_more_pending", report.HasMorePending,
	)
	return report, nil
}

// classifyInGroups classifies each group concurrently and pauses between
// groups. There is no pause after the last group. When ctx ends it returns
// the error together with the number of leading items whose outcomes are
// complete; a group cut short counts as not classified.
func (j ReconciliationJob) classifyInGroups(ctx context.Context, items []entities.Petition) ([]entities.ModerationOutcome, int, error) {
	outcomes := make([]entities.ModerationOutcome, len(items))
	size := j.groupSize()

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				outcomes[i] = j.Classifier.Classify(groupCtx, items[i])
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return outcomes, start, err
		}

		if end < len(items) {
			if err := j.sleep(ctx, j.groupDelay()); err != nil {
				return outcomes, end, err
			}
		}
	}
	return outcomes, len(items), nil
}

func (j ReconciliationJob) commit(
	ctx context.Context,
	items []entities.Petition,
	outcomes []entities.ModerationOutcome,
	report *ReconciliationReport,
) error {
	return j.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx ports.PetitionTx) error {
		tally := ReconciliationReport{HasMorePending: report.HasMorePending}
		now := j.now()
		for i, item := range items {
			current, err := tx.GetPetition(ctx, item.PetitionID)
			if errors.Is(err, domainerrors.ErrPetitionNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			outcome := outcomes[i]
			status := current.Status
			switch {
			case outcome.Definitive() && current.Status.Unresolved():
				status = outcome.Verdict.Status()
				if status == entities.PetitionStatusRejected {
					tally.Rejected++
				} else {
					tally.Approved++
				}
			case !outcome.Definitive():
				tally.KeptPending++
			}
			if err := tx.UpdatePetitionStatus(ctx, current.PetitionID, status, now); err != nil {
				return err
			}
		}
		*report = tally
		return nil
	})
}

func (j ReconciliationJob) sleep(ctx context.Context, d time.Duration) error {
	if j.Sleeper != nil {
		return j.Sleeper.Sleep(ctx, d)
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

func (j ReconciliationJob) now() time.Time {
	if j.Clock != nil {
		return j.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (j ReconciliationJob) batchCap() int {
	if j.BatchCap <= 0 {
		return DefaultBatchCap
	}
	return j.BatchCap
}

func (j ReconciliationJob) groupSize() int {
	if j.GroupSize <= 0 {
		return DefaultGroupSize
	}
	return j.GroupSize
}

func (j ReconciliationJob) groupDelay() time.Duration {
	if j.GroupDelay <= 0 {
		return DefaultGroupDelay
	}
	return j.GroupDelay
}

func (j ReconciliationJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return DefaultLockTTL
	}
	return j.LockTTL
}
