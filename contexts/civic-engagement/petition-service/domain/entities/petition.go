package entities

import (
	"strings"
	"time"
)

type PetitionStatus string

const (
	// PetitionStatusAbsent marks legacy rows written before status tracking.
	// It is treated as pending everywhere.
	PetitionStatusAbsent   PetitionStatus = ""
	PetitionStatusPending  PetitionStatus = "pending"
	PetitionStatusApproved PetitionStatus = "approved"
	PetitionStatusRejected PetitionStatus = "rejected"
)

// Unresolved reports whether the petition still awaits a moderation verdict.
func (s PetitionStatus) Unresolved() bool {
	return s == PetitionStatusAbsent || s == PetitionStatusPending
}

func ParsePetitionStatus(raw string) (PetitionStatus, bool) {
	switch PetitionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case PetitionStatusPending:
		return PetitionStatusPending, true
	case PetitionStatusApproved:
		return PetitionStatusApproved, true
	case PetitionStatusRejected:
		return PetitionStatusRejected, true
	default:
		return PetitionStatusAbsent, false
	}
}

// Petition is one public submission. AgeBracket, Gender and Region are the
// coarse dimensions the petition contributed to the counter families, kept so
// edits and deletes can reverse that exact contribution.
type Petition struct {
	PetitionID    string
	FingerprintID string
	Name          string
	Message       string
	Organization  string
	Judge         string
	MaskedIP      string
	Status        PetitionStatus
	AgeBracket    string
	Gender        string
	Region        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p Petition) Dimensions() Dimensions {
	return Dimensions{
		Age:    p.AgeBracket,
		Gender: p.Gender,
		Region: p.Region,
		Judge:  p.Judge,
	}
}

// FingerprintClaim is the uniqueness record that allows one petition per
// browser fingerprint.
type FingerprintClaim struct {
	FingerprintID string
	PetitionID    string
	MaskedIP      string
	CreatedAt     time.Time
}

// PersonalInfo is stored under a random identifier with no link back to the
// petition. It is write-only for the pipeline.
type PersonalInfo struct {
	RecordID   string
	AgeBracket string
	Gender     string
	Latitude   *float64
	Longitude  *float64
	Region     string
	CreatedAt  time.Time
}

func (p PersonalInfo) Empty() bool {
	return strings.TrimSpace(p.AgeBracket) == "" &&
		strings.TrimSpace(p.Gender) == "" &&
		p.Latitude == nil &&
		p.Longitude == nil
}

type SubmissionEvent struct {
	IPAddress     string
	FingerprintID string
	UserAgent     string
	OccurredAt    time.Time
}

// WarehouseRecord is the flattened petition row forwarded to analytics.
// It never carries demographics.
type WarehouseRecord struct {
	PetitionID   string    `json:"petition_id"`
	Name         string    `json:"name"`
	Message      string    `json:"message"`
	Organization string    `json:"organization"`
	Judge        string    `json:"judge"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewWarehouseRecord(p Petition) WarehouseRecord {
	return WarehouseRecord{
		PetitionID:   p.PetitionID,
		Name:         p.Name,
		Message:      p.Message,
		Organization: p.Organization,
		Judge:        p.Judge,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt.UTC(),
	}
}
