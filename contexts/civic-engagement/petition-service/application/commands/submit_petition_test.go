package commands_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/adapters/memory"
	"petitionhub/contexts/civic-engagement/petition-service/application/admission"
	"petitionhub/contexts/civic-engagement/petition-service/application/commands"
	"petitionhub/contexts/civic-engagement/petition-service/application/moderation"
	"petitionhub/contexts/civic-engagement/petition-service/application/stats"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
)

type fixedRegions struct {
	region string
}

func (f fixedRegions) ResolveRegion(lat float64, lng float64) (string, bool) {
	if f.region == "" {
		return "", false
	}
	return f.region, true
}

type capturingSink struct {
	records chan entities.WarehouseRecord
}

func (c capturingSink) SyncPetition(_ context.Context, record entities.WarehouseRecord) error {
	c.records <- record
	return nil
}

type fixture struct {
	store     *memory.Store
	model     *memory.ScriptedModel
	petitions commands.PetitionUseCase
	admin     commands.AdminUseCase
}

func newFixture(regions fixedRegions) fixture {
	store := memory.NewStore()
	store.SetNow(time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC))
	model := memory.NewScriptedModel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := stats.Aggregator{Logger: logger}
	return fixture{
		store: store,
		model: model,
		petitions: commands.PetitionUseCase{
			Limiter:    admission.Limiter{Events: store, Clock: store, Logger: logger},
			Petitions:  store,
			UnitOfWork: store,
			Stats:      aggregator,
			Classifier: moderation.Classifier{Model: model, Logs: store, Sleeper: store, Clock: store, IDGen: store, Logger: logger},
			Regions:    regions,
			Words:      entities.NewWordFilter([]string{"idiot"}),
			Clock:      store,
			IDGen:      store,
			Logger:     logger,
		},
		admin: commands.AdminUseCase{
			UnitOfWork:  store,
			Maintenance: store,
			Stats:       aggregator,
			Clock:       store,
			Logger:      logger,
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

func (f fixture) familyCounts(t *testing.T, family entities.CounterFamily) map[string]int64 {
	t.Helper()
	doc, err := f.store.GetFamily(context.Background(), family)
	if err != nil {
		t.Fatalf("get family %s: %v", family, err)
	}
	return doc.Counts
}

func TestCreateIncrementsEveryFamilyOfPresentFields(t *testing.T) {
	f := newFixture(fixedRegions{region: "Central"})
	result, err := f.petitions.Submit(context.Background(), commands.SubmitPetitionCommand{
		Message:       "Please show mercy.",
		Judge:         "judge-1",
		AgeBracket:    "20s",
		Gender:        "male",
		Latitude:      floatPtr(37.5),
		Longitude:     floatPtr(127.0),
		FingerprintID: "fp-1",
		ClientIP:      "198.51.100.23",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Edited || result.Petition.Region != "Central" {
		t.Fatalf("unexpected result %+v", result)
	}

	for _, family := range entities.AllCounterFamilies() {
		counts := f.familyCounts(t, family)
		if len(counts) != 1 {
			t.Fatalf("expected exactly one key in %s, got %v", family, counts)
		}
		for key, value := range counts {
			if value != 1 {
				t.Fatalf("expected %s/%s=1, got %d", family, key, value)
			}
		}
	}
	if f.familyCounts(t, "age_gender_region_judge")["20s_male_Central_judge-1"] != 1 {
		t.Fatalf("expected full composite key")
	}
}

func TestCreateStoresMaskedAndCleanedPetition(t *testing.T) {
	f := newFixture(fixedRegions{})
	result, err := f.petitions.Submit(context.Background(), commands.SubmitPetitionCommand{
		Name:          "  ",
		Message:       "The prosecutor is an IDIOT",
		FingerprintID: "fp-1",
		ClientIP:      "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	petition := result.Petition
	if petition.Name != "anonymous" || petition.Message != "The prosecutor is an *****" {
		t.Fatalf("expected cleaned anonymous petition, got %+v", petition)
	}
	if petition.MaskedIP != "203.0.***.***" {
		t.Fatalf("expected masked ip, got %q", petition.MaskedIP)
	}
	if petition.Status != entities.PetitionStatusApproved {
		t.Fatalf("expected approved status from default model reply, got %q", petition.Status)
	}
	if len(f.store.PersonalInfoRecords()) != 0 {
		t.Fatalf("expected no personal info without demographics")
	}
}

func TestCreateStoresUnlinkedPersonalInfo(t *testing.T) {
	f := newFixture(fixedRegions{region: "Central"})
	result, err := f.petitions.Submit(context.Background(), commands.SubmitPetitionCommand{
		Message:       "hello",
		AgeBracket:    "50s",
		Latitude:      floatPtr(1),
		Longitude:     floatPtr(2),
		FingerprintID: "fp-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	records := f.store.PersonalInfoRecords()
	if len(records) != 1 {
		t.Fatalf("expected one personal info record, got %d", len(records))
	}
	if records[0].RecordID == result.Petition.PetitionID || records[0].Region != "Central" {
		t.Fatalf("personal info must use its own id, got %+v", records[0])
	}
}

func TestDeleteReversesCreation(t *testing.T) {
	f := newFixture(fixedRegions{region: "North"})
	ctx := context.Background()
	result, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Message:       "hello",
		Judge:         "judge-4",
		AgeBracket:    "60s",
		Gender:        "female",
		Latitude:      floatPtr(1),
		Longitude:     floatPtr(2),
		FingerprintID: "fp-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.admin.DeletePetition(ctx, result.Petition.PetitionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, family := range entities.AllCounterFamilies() {
		if counts := f.familyCounts(t, family); len(counts) != 0 {
			t.Fatalf("expected %s to be empty after delete, got %v", family, counts)
		}
	}
	claimed, err := f.store.FingerprintClaimed(ctx, "fp-1")
	if err != nil || claimed {
		t.Fatalf("expected fingerprint claim to be released, got %v %v", claimed, err)
	}
	if _, err := f.store.GetPetition(ctx, result.Petition.PetitionID); !errors.Is(err, domainerrors.ErrPetitionNotFound) {
		t.Fatalf("expected petition to be gone, got %v", err)
	}
	if err := f.admin.DeletePetition(ctx, result.Petition.PetitionID); !errors.Is(err, domainerrors.ErrPetitionNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}

func TestJudgeOnlyEditMovesJudgeCounters(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx := context.Background()
	created, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Message:       "first",
		Judge:         "judge-1",
		AgeBracket:    "30s",
		FingerprintID: "fp-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ageBefore := f.familyCounts(t, "age")
	logsBefore := len(f.store.ModerationLogs())

	edited, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Message:       "second",
		Judge:         "judge-2",
		FingerprintID: "fp-1",
		IsEdit:        true,
		EditID:        created.Petition.PetitionID,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.Edited || edited.Petition.Message != "second" || edited.Petition.AgeBracket != "30s" {
		t.Fatalf("unexpected edit result %+v", edited)
	}

	judge := f.familyCounts(t, "judge")
	if judge["judge-1"] != 0 || judge["judge-2"] != 1 {
		t.Fatalf("expected judge counter to move, got %v", judge)
	}
	if f.familyCounts(t, "age_judge")["30s_judge-2"] != 1 {
		t.Fatalf("expected age_judge to move")
	}
	if after := f.familyCounts(t, "age"); after["30s"] != ageBefore["30s"] {
		t.Fatalf("age family must not change, before %v after %v", ageBefore, after)
	}
	if f.familyCounts(t, entities.GlobalFamily)[entities.GlobalKey] != 1 {
		t.Fatalf("global total must stay at 1")
	}
	if len(f.store.ModerationLogs()) != logsBefore {
		t.Fatalf("edits must not be re-moderated")
	}
}

func TestEditRequiresMatchingFingerprint(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx := context.Background()
	created, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "mine", FingerprintID: "fp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = f.petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Message:       "hijack",
		FingerprintID: "fp-2",
		IsEdit:        true,
		EditID:        created.Petition.PetitionID,
	})
	if !errors.Is(err, domainerrors.ErrPetitionNotFound) {
		t.Fatalf("expected not found for foreign fingerprint, got %v", err)
	}
	_, err = f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "x", FingerprintID: "fp-1", IsEdit: true})
	if !errors.Is(err, domainerrors.ErrInvalidSubmission) {
		t.Fatalf("expected invalid submission without editId, got %v", err)
	}
}

func TestDuplicateFingerprintIsRejected(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx := context.Background()
	if _, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "one", FingerprintID: "fp-1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "two", FingerprintID: "fp-1"})
	if !errors.Is(err, domainerrors.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
	if f.familyCounts(t, entities.GlobalFamily)[entities.GlobalKey] != 1 {
		t.Fatalf("duplicate must not change counters")
	}
}

func TestFourthAttemptIsRateLimited(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{FingerprintID: "fp-1"})
		if !errors.Is(err, domainerrors.ErrInvalidSubmission) {
			t.Fatalf("attempt %d: expected invalid submission, got %v", i, err)
		}
	}
	_, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "ok now", FingerprintID: "fp-1"})
	if !errors.Is(err, domainerrors.ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestLimiterOutageRejectsSubmission(t *testing.T) {
	f := newFixture(fixedRegions{})
	f.store.SetEventLogError(errors.New("firestore unavailable"))

	_, err := f.petitions.Submit(context.Background(), commands.SubmitPetitionCommand{Message: "hi", FingerprintID: "fp-1"})
	if !errors.Is(err, domainerrors.ErrLimiterUnavailable) {
		t.Fatalf("expected limiter unavailable, got %v", err)
	}
	if claimed, _ := f.store.FingerprintClaimed(context.Background(), "fp-1"); claimed {
		t.Fatalf("no petition may be stored when the limiter fails")
	}
}

func TestValidationRules(t *testing.T) {
	f := newFixture(fixedRegions{})
	cases := map[string]commands.SubmitPetitionCommand{
		"unknown judge":   {Message: "m", Judge: "judge-99", FingerprintID: "fp-a"},
		"latitude alone":  {Message: "m", Latitude: floatPtr(10), FingerprintID: "fp-b"},
		"out of range":    {Message: "m", Latitude: floatPtr(91), Longitude: floatPtr(0), FingerprintID: "fp-c"},
		"separator":       {Message: "m", AgeBracket: "20_29", FingerprintID: "fp-d"},
		"no fingerprint":  {Message: "m"},
		"message too big": {Message: string(make([]rune, commands.MaxMessageLength+1)), FingerprintID: "fp-e"},
	}
	for name, cmd := range cases {
		if _, err := f.petitions.Submit(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidSubmission) {
			t.Fatalf("%s: expected invalid submission, got %v", name, err)
		}
	}
}

func TestModerationOutcomeSetsStatus(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx := context.Background()

	f.model.Enqueue(memory.ScriptedReply{Raw: `{"isAbusive": true, "confidence": 0.99, "reason": "abuse"}`})
	rejected, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "abusive text", FingerprintID: "fp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rejected.Petition.Status != entities.PetitionStatusRejected {
		t.Fatalf("expected rejected, got %q", rejected.Petition.Status)
	}

	f.model.Enqueue(memory.ScriptedReply{Err: errors.New("boom")})
	pending, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{Message: "unlucky", FingerprintID: "fp-2"})
	if err != nil {
		t.Fatalf("classification failures must not fail the submission: %v", err)
	}
	if pending.Petition.Status != entities.PetitionStatusPending {
		t.Fatalf("expected pending, got %q", pending.Petition.Status)
	}
}

func TestCreateForwardsToWarehouse(t *testing.T) {
	f := newFixture(fixedRegions{})
	sink := capturingSink{records: make(chan entities.WarehouseRecord, 1)}
	f.petitions.Warehouse = sink

	result, err := f.petitions.Submit(context.Background(), commands.SubmitPetitionCommand{Message: "sync me", FingerprintID: "fp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case record := <-sink.records:
		if record.PetitionID != result.Petition.PetitionID || record.Status != "approved" {
			t.Fatalf("unexpected warehouse record %+v", record)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected warehouse record")
	}
}

// hangUpClassifier cancels the caller's context before answering, the way a
// client dropping the connection mid-request would.
type hangUpClassifier struct {
	cancel context.CancelFunc
}

func (c hangUpClassifier) Classify(ctx context.Context, petition entities.Petition) entities.ModerationOutcome {
	c.cancel()
	if err := ctx.Err(); err != nil {
		return entities.ModerationOutcome{KeepPending: true, Err: err}
	}
	return entities.ModerationOutcome{Verdict: entities.Verdict{Confidence: 0.9, Reason: "ok"}, Attempts: 1}
}

func TestCreateFinishesModerationAfterCallerHangsUp(t *testing.T) {
	f := newFixture(fixedRegions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.petitions.Classifier = hangUpClassifier{cancel: cancel}

	result, err := f.petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Message:       "hello",
		FingerprintID: "fp-1",
		ClientIP:      "198.51.100.23",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Petition.Status != entities.PetitionStatusApproved {
		t.Fatalf("expected verdict despite hang-up, got %q", result.Petition.Status)
	}
	stored, err := f.store.GetPetition(context.Background(), result.Petition.PetitionID)
	if err != nil {
		t.Fatalf("get petition: %v", err)
	}
	if stored.Status != entities.PetitionStatusApproved {
		t.Fatalf("expected stored verdict, got %q", stored.Status)
	}
}
