package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	petitionservice "petitionhub/contexts/civic-engagement/petition-service"
	petitionerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	petitionhttp "petitionhub/contexts/civic-engagement/petition-service/transport/http"
	_ "petitionhub/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

const maxRequestBody = 64 << 10

type Server struct {
	mux       *http.ServeMux
	http      *http.Server
	logger    *slog.Logger
	addr      string
	petitions petitionservice.Module
	metrics   http.Handler
}

// New registers every route. metrics may be nil when no collector registry is
// exposed.
func New(
	petitions petitionservice.Module,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		petitions: petitions,
		metrics:   metrics,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/petitions", s.handleSubmitPetition)
	s.mux.HandleFunc("GET /api/petitions/{fingerprint_id}", s.handleGetPetition)
	s.mux.HandleFunc("GET /api/stats/families/{family}", s.handleCounterFamily)

	s.mux.HandleFunc("GET /api/admin/petitions", s.requireAdmin(s.handleListPetitions))
	s.mux.HandleFunc("PATCH /api/admin/petitions/{petition_id}/status", s.requireAdmin(s.handleUpdateStatus))
	s.mux.HandleFunc("DELETE /api/admin/petitions/{petition_id}", s.requireAdmin(s.handleDeletePetition))
	s.mux.HandleFunc("POST /api/admin/petitions/process-pending", s.requireAdmin(s.handleProcessPending))
	s.mux.HandleFunc("POST /api/admin/petitions/normalize-status", s.requireAdmin(s.handleNormalizeStatus))
	s.mux.HandleFunc("GET /api/admin/stats", s.requireAdmin(s.handleStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitPetition godoc
// @Summary Submit or edit a petition
// @Tags petitions
// @Accept json
// @Produce json
// @Param request body petitionhttp.SubmitPetitionRequest true "petition"
// @Success 200 {object} petitionhttp.SubmitPetitionResponse
// @Failure 400 {object} petitionhttp.ErrorEnvelope
// @Failure 403 {object} petitionhttp.ErrorEnvelope
// @Failure 429 {object} petitionhttp.ErrorEnvelope
// @Router /api/petitions [post]
func (s *Server) handleSubmitPetition(w http.ResponseWriter, r *http.Request) {
	var req petitionhttp.SubmitPetitionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writePetitionError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	resp, err := s.petitions.Handler.SubmitPetitionHandler(r.Context(), resolveClientIP(r), r.UserAgent(), req)
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetPetition godoc
// @Summary Look up the petition submitted by a fingerprint
// @Tags petitions
// @Produce json
// @Param fingerprint_id path string true "browser fingerprint"
// @Success 200 {object} petitionhttp.GetPetitionResponse
// @Failure 404 {object} petitionhttp.ErrorEnvelope
// @Router /api/petitions/{fingerprint_id} [get]
func (s *Server) handleGetPetition(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.GetPetitionHandler(r.Context(), r.PathValue("fingerprint_id"))
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCounterFamily(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.CounterFamilyHandler(r.Context(), r.PathValue("family"))
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListPetitions godoc
// @Summary List petitions for moderators
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Param cursor query string false "id of the last item of the previous page"
// @Success 200 {object} petitionhttp.ListPetitionsResponse
// @Failure 401 {object} petitionhttp.ErrorEnvelope
// @Failure 403 {object} petitionhttp.ErrorEnvelope
// @Router /api/admin/petitions [get]
func (s *Server) handleListPetitions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.petitions.Handler.ListPetitionsHandler(r.Context(), query.Get("status"), query.Get("cursor"))
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req petitionhttp.UpdateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writePetitionError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	resp, err := s.petitions.Handler.UpdateStatusHandler(r.Context(), r.PathValue("petition_id"), req)
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePetition(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.DeletePetitionHandler(r.Context(), r.PathValue("petition_id"))
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProcessPending godoc
// @Summary Run one reconciliation pass over unresolved petitions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} petitionhttp.ProcessPendingResponse
// @Router /api/admin/petitions/process-pending [post]
func (s *Server) handleProcessPending(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.ProcessPendingHandler(r.Context())
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNormalizeStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.NormalizeStatusHandler(r.Context())
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.petitions.Handler.StatsHandler(r.Context())
	if err != nil {
		s.writePetitionDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.petitions.Handler.AuthorizeAdmin(r.Context(), bearerToken(r)); err != nil {
			s.writePetitionDomainError(w, r, err)
			return
		}
		next(w, r)
	}
}

func (s *Server) writePetitionDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, petitionerrors.ErrInvalidSubmission),
		errors.Is(err, petitionerrors.ErrInvalidRequest),
		errors.Is(err, petitionerrors.ErrInvalidStatus):
		writePetitionError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, petitionerrors.ErrUnauthenticated):
		writePetitionError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a valid admin session is required")
	case errors.Is(err, petitionerrors.ErrPermissionDenied):
		writePetitionError(w, http.StatusForbidden, "PERMISSION_DENIED", "admin access required")
	case errors.Is(err, petitionerrors.ErrDuplicateSubmission):
		writePetitionError(w, http.StatusForbidden, "DUPLICATE_SUBMISSION", err.Error())
	case errors.Is(err, petitionerrors.ErrPetitionNotFound),
		errors.Is(err, petitionerrors.ErrUnknownFamily):
		writePetitionError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, petitionerrors.ErrRateLimitExceeded):
		writePetitionError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
	default:
		s.logger.Error("petition request failed",
			"event", "http_petition_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writePetitionError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writePetitionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, petitionhttp.ErrorEnvelope{
		Status: "error",
		Error: petitionhttp.ErrorBody{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// resolveClientIP takes the first X-Forwarded-For hop, else the peer address
// without its port.
func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
