package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/application/commands"
	"petitionhub/contexts/civic-engagement/petition-service/application/queries"
	"petitionhub/contexts/civic-engagement/petition-service/application/workers"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
	httptransport "petitionhub/contexts/civic-engagement/petition-service/transport/http"
)

type Handler struct {
	Petitions      commands.PetitionUseCase
	Admin          commands.AdminUseCase
	Queries        queries.PetitionQueries
	Reconciliation workers.ReconciliationJob
	Sessions       ports.SessionVerifier
	Logger         *slog.Logger
}

func (h Handler) SubmitPetitionHandler(
	ctx context.Context,
	clientIP string,
	userAgent string,
	req httptransport.SubmitPetitionRequest,
) (httptransport.SubmitPetitionResponse, error) {
	result, err := h.Petitions.Submit(ctx, commands.SubmitPetitionCommand{
		Name:          req.Name,
		Message:       req.Message,
		Organization:  req.Organization,
		Judge:         req.Judge,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		AgeBracket:    req.Age,
		Gender:        req.Gender,
		FingerprintID: req.PetitionID,
		ClientIP:      clientIP,
		UserAgent:     userAgent,
		IsEdit:        req.IsEdit,
		EditID:        req.EditID,
	})
	if err != nil {
		return httptransport.SubmitPetitionResponse{}, err
	}
	message := "Petition submitted"
	if result.Edited {
		message = "Petition updated"
	}
	return httptransport.SubmitPetitionResponse{
		Success: true,
		Message: message,
		ID:      result.Petition.PetitionID,
		Status:  string(result.Petition.Status),
	}, nil
}

func (h Handler) GetPetitionHandler(ctx context.Context, fingerprintID string) (httptransport.GetPetitionResponse, error) {
	petition, err := h.Queries.GetByFingerprint(ctx, fingerprintID)
	if err != nil {
		return httptransport.GetPetitionResponse{}, err
	}
	return httptransport.GetPetitionResponse{Petition: mapPetition(petition, false)}, nil
}

func (h Handler) CounterFamilyHandler(ctx context.Context, family string) (httptransport.CounterFamilyResponse, error) {
	doc, err := h.Queries.Family(ctx, family)
	if err != nil {
		return httptransport.CounterFamilyResponse{}, err
	}
	return httptransport.CounterFamilyResponse{Family: string(doc.Family), Counts: doc.Counts}, nil
}

// AuthorizeAdmin fails closed: verifier errors other than an explicit
// unauthenticated result are reported as permission denied.
func (h Handler) AuthorizeAdmin(ctx context.Context, bearerToken string) error {
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return domainerrors.ErrUnauthenticated
	}
	if h.Sessions == nil {
		return domainerrors.ErrPermissionDenied
	}
	session, err := h.Sessions.VerifySession(ctx, token)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("admin session rejected",
				"event", "petition_admin_session_rejected",
				"module", "civic-engagement/petition-service",
				"layer", "adapter",
				"error", err.Error(),
			)
		}
		if errors.Is(err, domainerrors.ErrUnauthenticated) {
			return domainerrors.ErrUnauthenticated
		}
		return domainerrors.ErrPermissionDenied
	}
	if !session.IsAdmin {
		return domainerrors.ErrPermissionDenied
	}
	return nil
}

func (h Handler) ListPetitionsHandler(ctx context.Context, status string, cursor string) (httptransport.ListPetitionsResponse, error) {
	page, err := h.Queries.ListPetitions(ctx, status, cursor)
	if err != nil {
		return httptransport.ListPetitionsResponse{}, err
	}
	resp := httptransport.ListPetitionsResponse{
		Items:   make([]httptransport.PetitionDTO, 0, len(page.Items)),
		HasMore: page.HasMore,
		Cursor:  page.NextCursor,
	}
	for _, item := range page.Items {
		resp.Items = append(resp.Items, mapPetition(item, true))
	}
	return resp, nil
}

func (h Handler) UpdateStatusHandler(ctx context.Context, petitionID string, req httptransport.UpdateStatusRequest) (httptransport.SuccessResponse, error) {
	if err := h.Admin.SetStatus(ctx, petitionID, req.Status); err != nil {
		return httptransport.SuccessResponse{}, err
	}
	return httptransport.SuccessResponse{Success: true}, nil
}

func (h Handler) DeletePetitionHandler(ctx context.Context, petitionID string) (httptransport.SuccessResponse, error) {
	if err := h.Admin.DeletePetition(ctx, petitionID); err != nil {
		return httptransport.SuccessResponse{}, err
	}
	return httptransport.SuccessResponse{Success: true}, nil
}

// ProcessPendingHandler runs one reconciliation pass. The pass outlives the
// request so a client timeout cannot abandon a batch halfway through.
func (h Handler) ProcessPendingHandler(ctx context.Context) (httptransport.ProcessPendingResponse, error) {
	report, err := h.Reconciliation.RunOnce(context.WithoutCancel(ctx))
	if err != nil {
		return httptransport.ProcessPendingResponse{}, err
	}
	return httptransport.ProcessPendingResponse{
		ProcessedCount: report.ProcessedCount,
		HasMorePending: report.HasMorePending,
		Approved:       report.Approved,
		Rejected:       report.Rejected,
		KeptPending:    report.KeptPending,
	}, nil
}

func (h Handler) StatsHandler(ctx context.Context) (httptransport.StatsResponse, error) {
	summary, err := h.Queries.Stats(ctx)
	if err != nil {
		return httptransport.StatsResponse{}, err
	}
	return httptransport.StatsResponse{
		Total:    summary.Total,
		Pending:  summary.Pending,
		Approved: summary.Approved,
		Rejected: summary.Rejected,
	}, nil
}

func (h Handler) NormalizeStatusHandler(ctx context.Context) (httptransport.NormalizeStatusResponse, error) {
	updated, err := h.Admin.NormalizeStatuses(ctx)
	if err != nil {
		return httptransport.NormalizeStatusResponse{}, err
	}
	return httptransport.NormalizeStatusResponse{UpdatedCount: updated}, nil
}

func mapPetition(petition entities.Petition, includeIP bool) httptransport.PetitionDTO {
	status := petition.Status
	if status == entities.PetitionStatusAbsent {
		status = entities.PetitionStatusPending
	}
	dto := httptransport.PetitionDTO{
		ID:           petition.PetitionID,
		Name:         petition.Name,
		Message:      petition.Message,
		Organization: petition.Organization,
		Judge:        petition.Judge,
		Status:       string(status),
		CreatedAt:    petition.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    petition.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if includeIP {
		dto.MaskedIP = petition.MaskedIP
	}
	return dto
}
