package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/adapters/memory"
	"petitionhub/contexts/civic-engagement/petition-service/application/workers"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

type stubVerifier struct {
	session ports.Session
	err     error
}

func (s stubVerifier) VerifySession(context.Context, string) (ports.Session, error) {
	return s.session, s.err
}

func TestAuthorizeAdminFailsClosed(t *testing.T) {
	cases := []struct {
		name     string
		sessions ports.SessionVerifier
		token    string
		want     error
	}{
		{name: "missing token", sessions: stubVerifier{session: ports.Session{IsAdmin: true}}, token: " ", want: domainerrors.ErrUnauthenticated},
		{name: "no verifier", token: "t", want: domainerrors.ErrPermissionDenied},
		{name: "unauthenticated", sessions: stubVerifier{err: domainerrors.ErrUnauthenticated}, token: "t", want: domainerrors.ErrUnauthenticated},
		{name: "verifier outage", sessions: stubVerifier{err: errors.New("timeout")}, token: "t", want: domainerrors.ErrPermissionDenied},
		{name: "not admin", sessions: stubVerifier{session: ports.Session{Subject: "u"}}, token: "t", want: domainerrors.ErrPermissionDenied},
		{name: "admin", sessions: stubVerifier{session: ports.Session{Subject: "u", IsAdmin: true}}, token: "t"},
	}
	for _, tc := range cases {
		h := Handler{Sessions: tc.sessions}
		err := h.AuthorizeAdmin(context.Background(), tc.token)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: expected access, got %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestMapPetitionHidesIPAndNormalizesStatus(t *testing.T) {
	petition := entities.Petition{
		PetitionID: "ptn-1",
		MaskedIP:   "203.0.***.***",
		CreatedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	public := mapPetition(petition, false)
	if public.MaskedIP != "" || public.Status != "pending" {
		t.Fatalf("unexpected public dto %+v", public)
	}
	if public.CreatedAt != "2025-03-01T09:00:00Z" {
		t.Fatalf("expected RFC3339 timestamp, got %q", public.CreatedAt)
	}
	if admin := mapPetition(petition, true); admin.MaskedIP != "203.0.***.***" {
		t.Fatalf("expected admin dto to carry masked ip, got %q", admin.MaskedIP)
	}
}

// liveOnlyClassifier only approves while its context is still live.
type liveOnlyClassifier struct{}

func (liveOnlyClassifier) Classify(ctx context.Context, petition entities.Petition) entities.ModerationOutcome {
	if err := ctx.Err(); err != nil {
		return entities.ModerationOutcome{KeepPending: true, Err: err}
	}
	return entities.ModerationOutcome{Verdict: entities.Verdict{Confidence: 0.9, Reason: "ok"}, Attempts: 1}
}

func TestProcessPendingOutlivesRequest(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 4; i++ {
		store.SeedPetition(entities.Petition{
			PetitionID: fmt.Sprintf("p-%d", i),
			Status:     entities.PetitionStatusPending,
			CreatedAt:  time.Date(2025, 3, 1, 9, i, 0, 0, time.UTC),
		})
	}
	h := Handler{Reconciliation: workers.ReconciliationJob{
		Petitions:  store,
		UnitOfWork: store,
		Classifier: liveOnlyClassifier{},
		Sleeper:    store,
		Lock:       store,
		Clock:      store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := h.ProcessPendingHandler(ctx)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if resp.ProcessedCount != 4 || resp.Approved != 4 || resp.HasMorePending {
		t.Fatalf("expected the whole pass to finish, got %+v", resp)
	}
	unresolved, _ := store.ListUnresolved(context.Background(), 0)
	if len(unresolved) != 0 {
		t.Fatalf("expected nothing left unresolved, got %d", len(unresolved))
	}
}
