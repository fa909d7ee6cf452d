package queries

import (
	"context"
	"strings"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const DefaultPageSize = 10

type PetitionPage struct {
	Items      []entities.Petition
	HasMore    bool
	NextCursor string
}

type StatsSummary struct {
	Total    int64
	Pending  int64
	Approved int64
	Rejected int64
}

type PetitionQueries struct {
	Petitions ports.PetitionReader
	PageSize  int
}

func (q PetitionQueries) GetByFingerprint(ctx context.Context, fingerprintID string) (entities.Petition, error) {
	fingerprintID = strings.TrimSpace(fingerprintID)
	if fingerprintID == "" {
		return entities.Petition{}, domainerrors.ErrInvalidRequest
	}
	return q.Petitions.GetPetitionByFingerprint(ctx, fingerprintID)
}

// ListPetitions pages newest first. An empty status lists everything;
// "pending" also returns petitions stored without a status.
func (q PetitionQueries) ListPetitions(ctx context.Context, rawStatus string, cursor string) (PetitionPage, error) {
	status := entities.PetitionStatusAbsent
	if strings.TrimSpace(rawStatus) != "" {
		parsed, ok := entities.ParsePetitionStatus(rawStatus)
		if !ok {
			return PetitionPage{}, domainerrors.ErrInvalidStatus
		}
		status = parsed
	}

	size := q.pageSize()
	items, err := q.Petitions.ListPetitions(ctx, ports.PetitionListFilter{
		Status: status,
		Cursor: strings.TrimSpace(cursor),
		Limit:  size + 1,
	})
	if err != nil {
		return PetitionPage{}, err
	}

	page := PetitionPage{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		page.HasMore = true
	}
	if page.HasMore {
		page.NextCursor = page.Items[len(page.Items)-1].PetitionID
	}
	return page, nil
}

// Stats reads the total from the global counter and the per-status split
// from count queries.
func (q PetitionQueries) Stats(ctx context.Context) (StatsSummary, error) {
	global, err := q.Petitions.GetFamily(ctx, entities.GlobalFamily)
	if err != nil {
		return StatsSummary{}, err
	}
	counts, err := q.Petitions.CountByStatus(ctx)
	if err != nil {
		return StatsSummary{}, err
	}
	return StatsSummary{
		Total:    global.Counts[entities.GlobalKey],
		Pending:  counts.Pending,
		Approved: counts.Approved,
		Rejected: counts.Rejected,
	}, nil
}

func (q PetitionQueries) Family(ctx context.Context, name string) (entities.FamilyDocument, error) {
	name = strings.TrimSpace(name)
	if !entities.IsCounterFamily(name) {
		return entities.FamilyDocument{}, domainerrors.ErrUnknownFamily
	}
	return q.Petitions.GetFamily(ctx, entities.CounterFamily(name))
}

func (q PetitionQueries) pageSize() int {
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	return q.PageSize
}
