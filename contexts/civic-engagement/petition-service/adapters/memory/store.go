package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

type state struct {
	petitions map[string]entities.Petition
	claims    map[string]entities.FingerprintClaim
	personal  map[string]entities.PersonalInfo
	families  map[entities.CounterFamily]entities.FamilyDocument
}

func (s state) clone() state {
	out := state{
		petitions: make(map[string]entities.Petition, len(s.petitions)),
		claims:    make(map[string]entities.FingerprintClaim, len(s.claims)),
		personal:  make(map[string]entities.PersonalInfo, len(s.personal)),
		families:  make(map[entities.CounterFamily]entities.FamilyDocument, len(s.families)),
	}
	for k, v := range s.petitions {
		out.petitions[k] = v
	}
	for k, v := range s.claims {
		out.claims[k] = v
	}
	for k, v := range s.personal {
		out.personal[k] = v
	}
	for k, v := range s.families {
		out.families[k] = v.Clone()
	}
	return out
}

// Store is the in-process adapter used by tests and local runs. Transactions
// work on a copy of the state and swap it in on success.
type Store struct {
	mu sync.RWMutex

	data           state
	events         []entities.SubmissionEvent
	moderationLogs []entities.ModerationLogEntry
	eventErr       error

	lockMu           sync.Mutex
	fingerprintLocks map[string]*sync.Mutex
	reconciling      bool

	clockMu sync.RWMutex
	now     time.Time
	sleeps  []time.Duration

	sequence uint64
}

func NewStore() *Store {
	return &Store{
		data: state{
			petitions: map[string]entities.Petition{},
			claims:    map[string]entities.FingerprintClaim{},
			personal:  map[string]entities.PersonalInfo{},
			families:  map[entities.CounterFamily]entities.FamilyDocument{},
		},
		fingerprintLocks: map[string]*sync.Mutex{},
	}
}

var (
	_ ports.PetitionReader      = (*Store)(nil)
	_ ports.UnitOfWork          = (*Store)(nil)
	_ ports.PetitionMaintenance = (*Store)(nil)
	_ ports.SubmissionEventLog  = (*Store)(nil)
	_ ports.ModerationLogStore  = (*Store)(nil)
	_ ports.ReconciliationLock  = (*Store)(nil)
	_ ports.Clock               = (*Store)(nil)
	_ ports.IDGenerator         = (*Store)(nil)
	_ ports.Sleeper             = (*Store)(nil)
)

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.PetitionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := &txView{data: s.data.clone()}
	if err := fn(ctx, working); err != nil {
		return err
	}
	s.data = working.data
	return nil
}

func (s *Store) GetPetition(ctx context.Context, petitionID string) (entities.Petition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data.petitions[strings.TrimSpace(petitionID)]
	if !ok {
		return entities.Petition{}, domainerrors.ErrPetitionNotFound
	}
	return item, nil
}

func (s *Store) GetPetitionByFingerprint(ctx context.Context, fingerprintID string) (entities.Petition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fingerprintID = strings.TrimSpace(fingerprintID)
	for _, item := range s.data.petitions {
		if item.FingerprintID == fingerprintID {
			return item, nil
		}
	}
	return entities.Petition{}, domainerrors.ErrPetitionNotFound
}

func (s *Store) FingerprintClaimed(ctx context.Context, fingerprintID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.claims[strings.TrimSpace(fingerprintID)]
	return ok, nil
}

func (s *Store) ListPetitions(ctx context.Context, filter ports.PetitionListFilter) ([]entities.Petition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Petition, 0, len(s.data.petitions))
	for _, item := range s.data.petitions {
		if !matchesStatus(item.Status, filter.Status) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PetitionID > items[j].PetitionID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	start := 0
	if cursor := strings.TrimSpace(filter.Cursor); cursor != "" {
		found := false
		for i, item := range items {
			if item.PetitionID == cursor {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, domainerrors.ErrInvalidRequest
		}
	}
	end := len(items)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	if start >= end {
		return []entities.Petition{}, nil
	}
	return append([]entities.Petition(nil), items[start:end]...), nil
}

func (s *Store) ListUnresolved(ctx context.Context, limit int) ([]entities.Petition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Petition, 0)
	for _, item := range s.data.petitions {
		if item.Status.Unresolved() {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PetitionID < items[j].PetitionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) CountByStatus(ctx context.Context) (ports.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts ports.StatusCounts
	for _, item := range s.data.petitions {
		switch {
		case item.Status.Unresolved():
			counts.Pending++
		case item.Status == entities.PetitionStatusApproved:
			counts.Approved++
		case item.Status == entities.PetitionStatusRejected:
			counts.Rejected++
		}
	}
	return counts, nil
}

func (s *Store) GetFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data.families[family]
	if !ok {
		return entities.FamilyDocument{Family: family, Counts: map[string]int64{}}, nil
	}
	return doc.Clone(), nil
}

func (s *Store) BackfillMissingStatus(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for id, item := range s.data.petitions {
		if item.Status != entities.PetitionStatusAbsent {
			continue
		}
		item.Status = entities.PetitionStatusPending
		item.UpdatedAt = now.UTC()
		s.data.petitions[id] = item
		updated++
	}
	return updated, nil
}

func (s *Store) CountByFingerprintSince(ctx context.Context, fingerprintID string, since time.Time) (int, error) {
	return s.countEvents(func(event entities.SubmissionEvent) bool {
		return event.FingerprintID == fingerprintID && !event.OccurredAt.Before(since)
	})
}

func (s *Store) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	return s.countEvents(func(event entities.SubmissionEvent) bool {
		return event.IPAddress == ip && !event.OccurredAt.Before(since)
	})
}

func (s *Store) countEvents(match func(entities.SubmissionEvent) bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eventErr != nil {
		return 0, s.eventErr
	}
	count := 0
	for _, event := range s.events {
		if match(event) {
			count++
		}
	}
	return count, nil
}

func (s *Store) AppendSubmissionEvent(ctx context.Context, event entities.SubmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *Store) WithFingerprintLock(ctx context.Context, fingerprintID string, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	lock, ok := s.fingerprintLocks[fingerprintID]
	if !ok {
		lock = &sync.Mutex{}
		s.fingerprintLocks[fingerprintID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *Store) AppendModerationLog(ctx context.Context, entry entities.ModerationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderationLogs = append(s.moderationLogs, entry)
	return nil
}

func (s *Store) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.reconciling {
		return nil, domainerrors.ErrLockHeld
	}
	s.reconciling = true
	return func(context.Context) error {
		s.lockMu.Lock()
		defer s.lockMu.Unlock()
		s.reconciling = false
		return nil
	}, nil
}

func (s *Store) Now() time.Time {
	s.clockMu.RLock()
	defer s.clockMu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

// SetNow pins the store clock. A zero value restores wall-clock time.
func (s *Store) SetNow(now time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = now.UTC()
}

func (s *Store) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.now.IsZero() {
		s.now = time.Now().UTC()
	}
	s.now = s.now.Add(d)
}

// Sleep records the requested pause and returns immediately.
func (s *Store) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *Store) Sleeps() []time.Duration {
	s.clockMu.RLock()
	defer s.clockMu.RUnlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func (s *Store) NewID(ctx context.Context) (string, error) {
	return s.nextID("ptn"), nil
}

func (s *Store) nextID(prefix string) string {
	n := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// SetEventLogError makes submission-event queries fail until cleared with nil.
func (s *Store) SetEventLogError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventErr = err
}

func (s *Store) ModerationLogs() []entities.ModerationLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.ModerationLogEntry(nil), s.moderationLogs...)
}

func (s *Store) PersonalInfoRecords() []entities.PersonalInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.PersonalInfo, 0, len(s.data.personal))
	for _, item := range s.data.personal {
		items = append(items, item)
	}
	return items
}

// SeedPetition inserts a petition directly, bypassing counters and claims.
func (s *Store) SeedPetition(petition entities.Petition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.petitions[petition.PetitionID] = petition
}

func matchesStatus(status entities.PetitionStatus, filter entities.PetitionStatus) bool {
	switch filter {
	case entities.PetitionStatusAbsent:
		return true
	case entities.PetitionStatusPending:
		return status.Unresolved()
	default:
		return status == filter
	}
}

type txView struct {
	data state
}

func (t *txView) GetPetition(ctx context.Context, petitionID string) (entities.Petition, error) {
	item, ok := t.data.petitions[strings.TrimSpace(petitionID)]
	if !ok {
		return entities.Petition{}, domainerrors.ErrPetitionNotFound
	}
	return item, nil
}

func (t *txView) InsertPetition(ctx context.Context, petition entities.Petition) error {
	if _, ok := t.data.petitions[petition.PetitionID]; ok {
		return fmt.Errorf("petition %s already exists", petition.PetitionID)
	}
	t.data.petitions[petition.PetitionID] = petition
	return nil
}

func (t *txView) UpdatePetition(ctx context.Context, petition entities.Petition) error {
	if _, ok := t.data.petitions[petition.PetitionID]; !ok {
		return domainerrors.ErrPetitionNotFound
	}
	t.data.petitions[petition.PetitionID] = petition
	return nil
}

func (t *txView) UpdatePetitionStatus(ctx context.Context, petitionID string, status entities.PetitionStatus, updatedAt time.Time) error {
	item, ok := t.data.petitions[petitionID]
	if !ok {
		return domainerrors.ErrPetitionNotFound
	}
	item.Status = status
	item.UpdatedAt = updatedAt.UTC()
	t.data.petitions[petitionID] = item
	return nil
}

func (t *txView) DeletePetition(ctx context.Context, petitionID string) error {
	if _, ok := t.data.petitions[petitionID]; !ok {
		return domainerrors.ErrPetitionNotFound
	}
	delete(t.data.petitions, petitionID)
	return nil
}

func (t *txView) ClaimFingerprint(ctx context.Context, claim entities.FingerprintClaim) error {
	if _, ok := t.data.claims[claim.FingerprintID]; ok {
		return domainerrors.ErrDuplicateSubmission
	}
	t.data.claims[claim.FingerprintID] = claim
	return nil
}

func (t *txView) ReleaseFingerprint(ctx context.Context, fingerprintID string) error {
	delete(t.data.claims, fingerprintID)
	return nil
}

func (t *txView) InsertPersonalInfo(ctx context.Context, info entities.PersonalInfo) error {
	t.data.personal[info.RecordID] = info
	return nil
}

func (t *txView) IncrementCounter(ctx context.Context, family entities.CounterFamily, key string, amount int64) error {
	doc := t.familyDoc(family)
	doc.Apply([]entities.CounterDelta{{Family: family, Key: key, Amount: amount}})
	doc.Version++
	t.data.families[family] = doc
	return nil
}

func (t *txView) LoadFamily(ctx context.Context, family entities.CounterFamily) (entities.FamilyDocument, error) {
	return t.familyDoc(family).Clone(), nil
}

func (t *txView) StoreFamily(ctx context.Context, doc entities.FamilyDocument) error {
	current := t.familyDoc(doc.Family)
	if current.Version != doc.Version {
		return domainerrors.ErrTransactionConflict
	}
	doc.Version++
	t.data.families[doc.Family] = doc.Clone()
	return nil
}

func (t *txView) familyDoc(family entities.CounterFamily) entities.FamilyDocument {
	doc, ok := t.data.families[family]
	if !ok {
		return entities.FamilyDocument{Family: family, Counts: map[string]int64{}}
	}
	return doc
}
