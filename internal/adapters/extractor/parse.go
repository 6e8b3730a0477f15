package extractor

import (
	"encoding/json"
	"strings"
	"time"

	"tugas-bot/internal/domain"
)

// classificationPayload — проволочный формат ответа всех провайдеров.
type classificationPayload struct {
	Type        string              `json:"type"`
	CourseName  *string             `json:"course_name"`
	Title       string              `json:"title"`
	Deadline    *string             `json:"deadline"`
	Description string              `json:"description"`
	Parallel    *string             `json:"parallel_code"`
	Assignments []assignmentPayload `json:"assignments"`

	ReferenceKeywords []string `json:"reference_keywords"`
	Changes           string   `json:"changes"`
	NewTitle          *string  `json:"new_title"`
	NewDescription    *string  `json:"new_description"`
	NewDeadline       *string  `json:"new_deadline"`
}

type assignmentPayload struct {
	CourseName  *string `json:"course_name"`
	Title       string  `json:"title"`
	Deadline    *string `json:"deadline"`
	Description string  `json:"description"`
	Parallel    *string `json:"parallel_code"`
}

// cleanModelText срезает markdown-ограждения вокруг JSON.
func cleanModelText(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func looksLikeJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") &&
		strings.Count(s, "{") == strings.Count(s, "}")
}

// parseClassification валидирует ответ провайдера и переводит его в доменный
// исход. Нарушение схемы — это *domain.SchemaError: цепочка идёт дальше.
func parseClassification(provider, raw string, loc *time.Location) (domain.ExtractionOutcome, error) {
	cleaned := cleanModelText(raw)
	if !looksLikeJSONObject(cleaned) {
		return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: provider, Reason: "ответ не является JSON-объектом"}
	}
	var payload classificationPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: provider, Reason: err.Error()}
	}

	switch payload.Type {
	case "unrecognized":
		return domain.ExtractionOutcome{Class: domain.ClassUnrecognized}, nil

	case "assignment_info":
		draft := draftFromPayload(assignmentPayload{
			CourseName:  payload.CourseName,
			Title:       payload.Title,
			Deadline:    payload.Deadline,
			Description: payload.Description,
			Parallel:    payload.Parallel,
		}, loc, domain.DraftNew)
		return domain.ExtractionOutcome{Class: domain.ClassNew, Drafts: []domain.AssignmentDraft{draft}}, nil

	case "multiple_assignments":
		if len(payload.Assignments) == 0 {
			return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: provider, Reason: "multiple_assignments без списка assignments"}
		}
		drafts := make([]domain.AssignmentDraft, 0, len(payload.Assignments))
		for _, item := range payload.Assignments {
			drafts = append(drafts, draftFromPayload(item, loc, domain.DraftMultipleMember))
		}
		return domain.ExtractionOutcome{Class: domain.ClassMultiple, Drafts: drafts}, nil

	case "assignment_update":
		if len(payload.ReferenceKeywords) == 0 && strings.TrimSpace(payload.Changes) == "" {
			return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: provider, Reason: "assignment_update без ключевых слов и описания изменений"}
		}
		upd := &domain.UpdateRequest{
			Keywords:    trimAll(payload.ReferenceKeywords),
			Changes:     strings.TrimSpace(payload.Changes),
			SectionCode: normalizeSection(payload.Parallel),
		}
		if payload.NewTitle != nil {
			upd.NewTitle = strings.TrimSpace(*payload.NewTitle)
		}
		if payload.NewDescription != nil {
			upd.NewDescription = strings.TrimSpace(*payload.NewDescription)
		}
		upd.NewDeadline = parseDeadline(payload.NewDeadline, loc)
		return domain.ExtractionOutcome{Class: domain.ClassUpdate, Update: upd}, nil

	default:
		return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: provider, Reason: "неизвестный тег классификации: " + payload.Type}
	}
}

func draftFromPayload(item assignmentPayload, loc *time.Location, class domain.DraftClass) domain.AssignmentDraft {
	draft := domain.AssignmentDraft{
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(item.Description),
		Deadline:    parseDeadline(item.Deadline, loc),
		SectionCode: normalizeSection(item.Parallel),
		Class:       class,
	}
	if item.CourseName != nil {
		draft.CourseName = strings.TrimSpace(*item.CourseName)
	}
	return draft
}

// parseDeadline принимает "2006-01-02" (конец дня) либо "2006-01-02 15:04".
func parseDeadline(raw *string, loc *time.Location) *time.Time {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", value, loc); err == nil {
		return &t
	}
	if d, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		t := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, loc)
		return &t
	}
	return nil
}

func normalizeSection(raw *string) string {
	if raw == nil {
		return ""
	}
	value := strings.ToLower(strings.TrimSpace(*raw))
	if value == "" || value == "null" || value == "all" || value == "n/a" {
		return ""
	}
	return value
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// matchPayload — проволочный формат ответа верификации.
type matchPayload struct {
	MatchIndex *int   `json:"match_index"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}

// parseMatch валидирует ответ верификационного вызова.
func parseMatch(provider, raw string, candidateCount int) (domain.MatchResult, error) {
	cleaned := cleanModelText(raw)
	if !looksLikeJSONObject(cleaned) {
		return domain.MatchResult{}, &domain.SchemaError{Provider: provider, Reason: "ответ не является JSON-объектом"}
	}
	var payload matchPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return domain.MatchResult{}, &domain.SchemaError{Provider: provider, Reason: err.Error()}
	}
	confidence := domain.ConfidenceTier(strings.ToLower(strings.TrimSpace(payload.Confidence)))
	switch confidence {
	case domain.ConfidenceLow, domain.ConfidenceMedium, domain.ConfidenceHigh:
	default:
		return domain.MatchResult{}, &domain.SchemaError{Provider: provider, Reason: "неизвестный уровень уверенности: " + payload.Confidence}
	}
	result := domain.MatchResult{Confidence: confidence, Reason: strings.TrimSpace(payload.Reason)}
	if payload.MatchIndex != nil {
		idx := *payload.MatchIndex - 1
		if idx < 0 || idx >= candidateCount {
			return domain.MatchResult{}, &domain.SchemaError{Provider: provider, Reason: "match_index вне списка кандидатов"}
		}
		result.MatchIndex = &idx
	}
	return result, nil
}
