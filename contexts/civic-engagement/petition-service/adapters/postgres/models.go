package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"

	"gorm.io/datatypes"
)

type petitionModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	FingerprintID string    `gorm:"column:fingerprint_id"`
	Name          string    `gorm:"column:name"`
	Message       string    `gorm:"column:message"`
	Organization  string    `gorm:"column:organization"`
	Judge         string    `gorm:"column:judge"`
	MaskedIP      string    `gorm:"column:masked_ip"`
	Status        *string   `gorm:"column:status"`
	AgeBracket    string    `gorm:"column:age_bracket"`
	Gender        string    `gorm:"column:gender"`
	Region        string    `gorm:"column:region"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (petitionModel) TableName() string {
	return "petitions"
}

func petitionModelFromEntity(p entities.Petition) petitionModel {
	row := petitionModel{
		ID:            strings.TrimSpace(p.PetitionID),
		FingerprintID: strings.TrimSpace(p.FingerprintID),
		Name:          p.Name,
		Message:       p.Message,
		Organization:  p.Organization,
		Judge:         p.Judge,
		MaskedIP:      p.MaskedIP,
		AgeBracket:    p.AgeBracket,
		Gender:        p.Gender,
		Region:        p.Region,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
	if p.Status != entities.PetitionStatusAbsent {
		status := string(p.Status)
		row.Status = &status
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m petitionModel) toEntity() entities.Petition {
	status := entities.PetitionStatusAbsent
	if m.Status != nil {
		status = entities.PetitionStatus(strings.TrimSpace(*m.Status))
	}
	return entities.Petition{
		PetitionID:    m.ID,
		FingerprintID: m.FingerprintID,
		Name:          m.Name,
		Message:       m.Message,
		Organization:  m.Organization,
		Judge:         m.Judge,
		MaskedIP:      m.MaskedIP,
		Status:        status,
		AgeBracket:    m.AgeBracket,
		Gender:        m.Gender,
		Region:        m.Region,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toPetitionEntities(rows []petitionModel) []entities.Petition {
	items := make([]entities.Petition, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

type fingerprintClaimModel struct {
	FingerprintID string    `gorm:"column:fingerprint_id;primaryKey"`
	PetitionID    string    `gorm:"column:petition_id"`
	MaskedIP      string    `gorm:"column:masked_ip"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (fingerprintClaimModel) TableName() string {
	return "petition_fingerprints"
}

type personalInfoModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	AgeBracket string    `gorm:"column:age_bracket"`
	Gender     string    `gorm:"column:gender"`
	Latitude   *float64  `gorm:"column:latitude"`
	Longitude  *float64  `gorm:"column:longitude"`
	Region     string    `gorm:"column:region"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (personalInfoModel) TableName() string {
	return "personal_info"
}

type submissionEventModel struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	IPAddress     string    `gorm:"column:ip_address"`
	FingerprintID string    `gorm:"column:fingerprint_id"`
	UserAgent     string    `gorm:"column:user_agent"`
	OccurredAt    time.Time `gorm:"column:occurred_at"`
}

func (submissionEventModel) TableName() string {
	return "submission_events"
}

type moderationLogModel struct {
	ID           string         `gorm:"column:id;primaryKey"`
	PetitionID   string         `gorm:"column:petition_id"`
	Name         string         `gorm:"column:name"`
	Organization string         `gorm:"column:organization"`
	Message      string         `gorm:"column:message"`
	Attempt      int            `gorm:"column:attempt"`
	RawResponse  string         `gorm:"column:raw_response"`
	Verdict      datatypes.JSON `gorm:"column:verdict;type:jsonb"`
	Error        string         `gorm:"column:error"`
	Model        string         `gorm:"column:model"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
}

func (moderationLogModel) TableName() string {
	return "moderation_logs"
}

func moderationLogModelFromEntity(entry entities.ModerationLogEntry) (moderationLogModel, error) {
	row := moderationLogModel{
		ID:           strings.TrimSpace(entry.EntryID),
		PetitionID:   entry.PetitionID,
		Name:         entry.Name,
		Organization: entry.Organization,
		Message:      entry.Message,
		Attempt:      entry.Attempt,
		RawResponse:  entry.RawResponse,
		Error:        entry.Error,
		Model:        entry.Model,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	if entry.Verdict != nil {
		raw, err := json.Marshal(entry.Verdict)
		if err != nil {
			return moderationLogModel{}, err
		}
		row.Verdict = datatypes.JSON(raw)
	}
	return row, nil
}

type statFamilyModel struct {
	Family    string                               `gorm:"column:family;primaryKey"`
	Counts    datatypes.JSONType[map[string]int64] `gorm:"column:counts;type:jsonb"`
	Version   int64                                `gorm:"column:version"`
	UpdatedAt time.Time                            `gorm:"column:updated_at"`
}

func (statFamilyModel) TableName() string {
	return "stat_families"
}

func (m statFamilyModel) toEntity() entities.FamilyDocument {
	counts := map[string]int64{}
	for key, value := range m.Counts.Data() {
		counts[key] = value
	}
	return entities.FamilyDocument{
		Family:  entities.CounterFamily(m.Family),
		Counts:  counts,
		Version: m.Version,
	}
}
