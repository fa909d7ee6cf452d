package ports

import (
	"context"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Sleeper pauses between rate-budgeted calls. Implementations must return
// early with ctx.Err() when the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type PetitionListFilter struct {
	// Status "pending" also matches petitions with no status.
	Status entities.PetitionStatus
	// Cursor is the id of the last petition of the previous page.
	Cursor string
	Limit  int
}

type StatusCounts struct {
	Pending  int64
	Approved int64
	Rejected int64
}

type PetitionReader interface {
	GetPetition(ctx context.Context, petitionID string) (entities.Petition, error)
	GetPetitionByFingerprint(ctx context.Context, fingerprintID string) (entities.Petition, error)
	FingerprintClaimed(ctx context.Context, fingerprintID string) (bool, error)
	ListPetitions(ctx context.Context, filter PetitionListFilter) ([]entities.Petition, error)
	// ListUnresolved returns petitions with status pending or absent, oldest first.
	ListUnresolved(ctx context.Context, limit int) ([]entities.Petition, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
	GetFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error)
}

// PetitionTx is the write surface available inside one store transaction.
type PetitionTx interface {
	// GetPetition locks the row until the transaction ends.
	GetPetition(ctx context.Context, petitionID string) (entities.Petition, error)
	InsertPetition(ctx context.Context, petition entities.Petition) error
	UpdatePetition(ctx context.Context, petition entities.Petition) error
	// UpdatePetitionStatus writes only status and updatedAt.
	UpdatePetitionStatus(ctx context.Context, petitionID string, status entities.PetitionStatus, updatedAt time.Time) error
	DeletePetition(ctx context.Context, petitionID string) error
	// ClaimFingerprint returns ErrDuplicateSubmission when the fingerprint is taken.
	ClaimFingerprint(ctx context.Context, claim entities.FingerprintClaim) error
	ReleaseFingerprint(ctx context.Context, fingerprintID string) error
	InsertPersonalInfo(ctx context.Context, info entities.PersonalInfo) error
	// IncrementCounter atomically adds amount to one key, flooring at zero.
	IncrementCounter(ctx context.Context, family entities.CounterFamily, key string, amount int64) error
	LoadFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error)
	// StoreFamily writes the document back, failing with ErrTransactionConflict
	// when the stored version no longer matches doc.Version.
	StoreFamily(ctx context.Context, doc entities.FamilyDocument) error
}

// UnitOfWork runs fn in one transaction, retrying it on optimistic
// concurrency conflicts. fn must be safe to re-run.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx PetitionTx) error) error
}

type PetitionMaintenance interface {
	// BackfillMissingStatus sets status pending on petitions with no status.
	BackfillMissingStatus(ctx context.Context, now time.Time) (int, error)
}

type SubmissionEventLog interface {
	CountByFingerprintSince(ctx context.Context, fingerprintID string, since time.Time) (int, error)
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
	AppendSubmissionEvent(ctx context.Context, event entities.SubmissionEvent) error
	// WithFingerprintLock serializes fn against other callers holding the same
	// fingerprint lock.
	WithFingerprintLock(ctx context.Context, fingerprintID string, fn func(ctx context.Context) error) error
}

type ModerationLogStore interface {
	AppendModerationLog(ctx context.Context, entry entities.ModerationLogEntry) error
}

// ContentClassifier sends one prompt to the classification model and returns
// its raw text. Rate limiting surfaces as ErrModelRateLimited.
type ContentClassifier interface {
	ClassifyContent(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// PetitionClassifier turns a petition into a moderation outcome. It never
// returns an error: failures come back as KeepPending outcomes.
type PetitionClassifier interface {
	Classify(ctx context.Context, petition entities.Petition) entities.ModerationOutcome
}

type RegionResolver interface {
	ResolveRegion(lat float64, lng float64) (string, bool)
}

type WarehouseSink interface {
	SyncPetition(ctx context.Context, record entities.WarehouseRecord) error
}

type Session struct {
	Subject string
	IsAdmin bool
}

type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (Session, error)
}

// ReconciliationLock keeps two reconciliation passes from overlapping.
// Acquire returns ErrLockHeld when another pass owns the lock.
type ReconciliationLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

type Metrics interface {
	ObserveSubmission(outcome string)
	ObserveModerationAttempt(result string)
	ObserveReconciliation(processed int, hasMore bool)
	ObserveWarehouseSync(ok bool)
}
