package http

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Status    string    `json:"status"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// SubmitPetitionRequest is the public submission body. PetitionID is the
// browser fingerprint, not a petition identifier.
type SubmitPetitionRequest struct {
	Name         string   `json:"name"`
	Message      string   `json:"message"`
	Organization string   `json:"organization,omitempty"`
	Judge        string   `json:"judge,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Age          string   `json:"age,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	PetitionID   string   `json:"petitionId"`
	IsEdit       bool     `json:"isEdit,omitempty"`
	EditID       string   `json:"editId,omitempty"`
}

type SubmitPetitionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

type PetitionDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Message      string `json:"message"`
	Organization string `json:"organization,omitempty"`
	Judge        string `json:"judge,omitempty"`
	Status       string `json:"status"`
	MaskedIP     string `json:"ip,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type GetPetitionResponse struct {
	Petition PetitionDTO `json:"petition"`
}

type ListPetitionsResponse struct {
	Items   []PetitionDTO `json:"items"`
	HasMore bool          `json:"hasMore"`
	Cursor  string        `json:"cursor,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ProcessPendingResponse struct {
	ProcessedCount int  `json:"processedCount"`
	HasMorePending bool `json:"hasMorePending"`
	Approved       int  `json:"approved"`
	Rejected       int  `json:"rejected"`
	KeptPending    int  `json:"keptPending"`
}

type StatsResponse struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

type NormalizeStatusResponse struct {
	UpdatedCount int `json:"updatedCount"`
}

type CounterFamilyResponse struct {
	Family string           `json:"family"`
	Counts map[string]int64 `json:"counts"`
}
