package entities

import "time"

// Verdict is the structured classification returned by the moderation model.
type Verdict struct {
	IsAbusive  bool    `json:"isAbusive"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func (v Verdict) Status() PetitionStatus {
	if v.IsAbusive {
		return PetitionStatusRejected
	}
	return PetitionStatusApproved
}

// ModerationOutcome is either a definitive verdict or a request to keep the
// petition pending. Err carries the cause when KeepPending is set.
type ModerationOutcome struct {
	Verdict     Verdict
	KeepPending bool
	Attempts    int
	Err         error
}

func (o ModerationOutcome) Definitive() bool {
	return !o.KeepPending
}

type ModerationLogEntry struct {
	EntryID      string
	PetitionID   string
	Name         string
	Organization string
	Message      string
	Attempt      int
	RawResponse  string
	Verdict      *Verdict
	Error        string
	Model        string
	CreatedAt    time.Time
}
