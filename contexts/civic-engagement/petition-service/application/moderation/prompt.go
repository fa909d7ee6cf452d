package moderation

import (
	"encoding/json"
	"fmt"
	"strings"

	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
)

const (
	DefaultPurpose = "a public petition asking the court for leniency on behalf of the defendant"

	anonymousName  = "anonymous"
	noOrganization = "none"
	promptTemplate = `You review submissions to %s.
Decide whether the submission below is abusive: hateful, harassing, obscene, threatening, spam, or unrelated to the purpose.

Name: %s
Organization: %s
Message:
%s

Respond with strict JSON only, no prose and no code fences:
{"isAbusive": boolean, "confidence": number between 0 and 1, "reason": string}`
)

// BuildPrompt renders the fixed classification prompt for one petition.
func BuildPrompt(purpose string, petition entities.Petition) string {
	if strings.TrimSpace(purpose) == "" {
		purpose = DefaultPurpose
	}
	name := strings.TrimSpace(petition.Name)
	if name == "" {
		name = anonymousName
	}
	organization := strings.TrimSpace(petition.Organization)
	if organization == "" {
		organization = noOrganization
	}
	return fmt.Sprintf(promptTemplate, purpose, name, organization, strings.TrimSpace(petition.Message))
}

type rawVerdict struct {
	IsAbusive  *bool    `json:"isAbusive"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// ParseVerdict decodes the model output. Surrounding code fences are
// stripped; anything else that is not the expected JSON object is rejected.
func ParseVerdict(raw string) (entities.Verdict, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return entities.Verdict{}, fmt.Errorf("%w: empty response", domainerrors.ErrUnparsableVerdict)
	}

	var decoded rawVerdict
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return entities.Verdict{}, fmt.Errorf("%w: %v", domainerrors.ErrUnparsableVerdict, err)
	}
	if decoded.IsAbusive == nil {
		return entities.Verdict{}, fmt.Errorf("%w: isAbusive missing", domainerrors.ErrUnparsableVerdict)
	}

	verdict := entities.Verdict{
		IsAbusive: *decoded.IsAbusive,
		Reason:    strings.TrimSpace(decoded.Reason),
	}
	if decoded.Confidence != nil {
		verdict.Confidence = clamp(*decoded.Confidence)
	}
	return verdict, nil
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func clamp(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
