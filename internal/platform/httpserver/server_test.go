package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	petitionservice "petitionhub/contexts/civic-engagement/petition-service"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/memory"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
	petitionhttp "petitionhub/contexts/civic-engagement/petition-service/transport/http"
)

const (
	adminToken  = "admin-token"
	viewerToken = "viewer-token"
)

func newPetitionServer(t *testing.T) (*httptest.Server, petitionservice.Module) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module := petitionservice.NewInMemoryModule(nil, logger)
	module.Sessions.Register(adminToken, ports.Session{Subject: "ops", IsAdmin: true})
	module.Sessions.Register(viewerToken, ports.Session{Subject: "viewer"})

	server := httptest.NewServer(New(module, nil, logger, ":0").Handler())
	t.Cleanup(server.Close)
	return server, module
}

func doJSON(t *testing.T, method string, url string, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitPetitionAndLookup(t *testing.T) {
	server, _ := newPetitionServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{
		Message:    "Please fix the bridge",
		Age:        "30s",
		Gender:     "female",
		PetitionID: "fp-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	submitted := decode[petitionhttp.SubmitPetitionResponse](t, resp)
	if !submitted.Success || submitted.ID == "" || submitted.Status != "approved" {
		t.Fatalf("unexpected submit response %+v", submitted)
	}

	lookup := doJSON(t, http.MethodGet, server.URL+"/api/petitions/fp-1", "", nil)
	if lookup.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on lookup, got %d", lookup.StatusCode)
	}
	got := decode[petitionhttp.GetPetitionResponse](t, lookup)
	if got.Petition.ID != submitted.ID || got.Petition.Name != "anonymous" {
		t.Fatalf("unexpected petition %+v", got.Petition)
	}
	if got.Petition.MaskedIP != "" {
		t.Fatalf("public lookup must not expose ip, got %q", got.Petition.MaskedIP)
	}

	family := doJSON(t, http.MethodGet, server.URL+"/api/stats/families/age_gender", "", nil)
	counts := decode[petitionhttp.CounterFamilyResponse](t, family)
	if counts.Counts["30s_female"] != 1 {
		t.Fatalf("expected age_gender 30s_female=1, got %v", counts.Counts)
	}
}

func TestSubmitPetitionErrors(t *testing.T) {
	server, _ := newPetitionServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{PetitionID: "fp-1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", resp.StatusCode)
	}
	envelope := decode[petitionhttp.ErrorEnvelope](t, resp)
	if envelope.Status != "error" || envelope.Error.Code != "INVALID_REQUEST" {
		t.Fatalf("unexpected error envelope %+v", envelope)
	}

	first := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{Message: "one", PetitionID: "fp-2"})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}
	dup := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{Message: "two", PetitionID: "fp-2"})
	if dup.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for duplicate, got %d", dup.StatusCode)
	}

	missing := doJSON(t, http.MethodGet, server.URL+"/api/petitions/unknown", "", nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}

	unknownFamily := doJSON(t, http.MethodGet, server.URL+"/api/stats/families/shoe_size", "", nil)
	if unknownFamily.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown family, got %d", unknownFamily.StatusCode)
	}
}

func TestSubmitPetitionRateLimited(t *testing.T) {
	server, _ := newPetitionServer(t)

	// Failed validations still count as admitted attempts.
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{PetitionID: "fp-busy"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, resp.StatusCode)
		}
	}
	resp := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{Message: "hi", PetitionID: "fp-busy"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireAdminSession(t *testing.T) {
	server, _ := newPetitionServer(t)

	cases := []struct {
		token string
		want  int
	}{
		{token: "", want: http.StatusUnauthorized},
		{token: "forged", want: http.StatusUnauthorized},
		{token: viewerToken, want: http.StatusForbidden},
		{token: adminToken, want: http.StatusOK},
	}
	for _, tc := range cases {
		resp := doJSON(t, http.MethodGet, server.URL+"/api/admin/stats", tc.token, nil)
		if resp.StatusCode != tc.want {
			t.Fatalf("token %q: expected %d, got %d", tc.token, tc.want, resp.StatusCode)
		}
	}
}

func TestAdminModerationFlow(t *testing.T) {
	server, module := newPetitionServer(t)
	module.Model.Enqueue(memory.ScriptedReply{Raw: "not json"})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/petitions", "", petitionhttp.SubmitPetitionRequest{Message: "hold me", PetitionID: "fp-9"})
	submitted := decode[petitionhttp.SubmitPetitionResponse](t, resp)
	if submitted.Status != "pending" {
		t.Fatalf("expected unparsable verdict to keep pending, got %q", submitted.Status)
	}

	list := doJSON(t, http.MethodGet, server.URL+"/api/admin/petitions?status=pending", adminToken, nil)
	page := decode[petitionhttp.ListPetitionsResponse](t, list)
	if len(page.Items) != 1 || page.Items[0].MaskedIP != "203.0.***.***" {
		t.Fatalf("expected one pending petition with masked ip, got %+v", page.Items)
	}

	processed := doJSON(t, http.MethodPost, server.URL+"/api/admin/petitions/process-pending", adminToken, nil)
	report := decode[petitionhttp.ProcessPendingResponse](t, processed)
	if report.ProcessedCount != 1 || report.HasMorePending || report.Approved != 1 {
		t.Fatalf("unexpected reconciliation report %+v", report)
	}

	update := doJSON(t, http.MethodPatch, server.URL+"/api/admin/petitions/"+submitted.ID+"/status", adminToken,
		petitionhttp.UpdateStatusRequest{Status: "rejected"})
	if update.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on status update, got %d", update.StatusCode)
	}
	bad := doJSON(t, http.MethodPatch, server.URL+"/api/admin/petitions/"+submitted.ID+"/status", adminToken,
		petitionhttp.UpdateStatusRequest{Status: "archived"})
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", bad.StatusCode)
	}

	deleted := doJSON(t, http.MethodDelete, server.URL+"/api/admin/petitions/"+submitted.ID, adminToken, nil)
	if deleted.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", deleted.StatusCode)
	}
	stats := decode[petitionhttp.StatsResponse](t, doJSON(t, http.MethodGet, server.URL+"/api/admin/stats", adminToken, nil))
	if stats.Total != 0 || stats.Rejected != 0 {
		t.Fatalf("expected empty stats after delete, got %+v", stats)
	}
}

func TestHealthAndSwagger(t *testing.T) {
	server, _ := newPetitionServer(t)

	if resp := doJSON(t, http.MethodGet, server.URL+"/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, server.URL+"/swagger/doc.json", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected swagger doc 200, got %d", resp.StatusCode)
	}
}

func TestResolveClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	if got := resolveClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected peer host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.1 , 10.0.0.2")
	if got := resolveClientIP(req); got != "203.0.113.1" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
