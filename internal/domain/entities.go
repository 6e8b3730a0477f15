package domain

import (
	"time"

	"github.com/google/uuid"
)

// Course описывает учебный курс с каноническим именем и алиасами.
type Course struct {
	ID      uuid.UUID
	Name    string
	Aliases []string
}

// Assignment представляет сохранённое задание.
type Assignment struct {
	ID          uuid.UUID
	CourseID    uuid.UUID
	CourseName  string
	SectionCode string
	Title       string
	Description string
	Deadline    *time.Time
	SenderID    string
	MessageID   string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SenderSectionStat содержит частоту использования параллели отправителем.
type SenderSectionStat struct {
	SectionCode string
	Count       int
}

// SectionSource указывает происхождение догадки о параллели.
type SectionSource string

const (
	SectionExplicit SectionSource = "explicit"
	SectionHistory  SectionSource = "sender_history"
	SectionUnknown  SectionSource = "unknown"
)

// DeadlineType классифицирует формулировку дедлайна в сообщении.
type DeadlineType string

const (
	DeadlineExplicit    DeadlineType = "explicit"
	DeadlineNextMeeting DeadlineType = "next_meeting"
	DeadlineRelative    DeadlineType = "relative"
	DeadlineUnknown     DeadlineType = "unknown"
)

// CourseHint хранит независимые подсказки по одному курсу.
// Поля параллели и дедлайна никогда не заимствуются у соседних курсов.
type CourseHint struct {
	Course            Course
	SectionCode       string
	SectionConfidence float64
	SectionSource     SectionSource
	DeadlineHint      *time.Time
	DeadlineType      DeadlineType
}

// MessageContext собирается перед извлечением и не персистится.
// GlobalSection заполняется только если каждая упомянутая дисциплина
// независимо разрешилась в один и тот же код параллели.
type MessageContext struct {
	GlobalSection     string
	SectionConfidence float64
	SectionSource     SectionSource
	DeadlineType      DeadlineType
	CourseHints       []CourseHint
}

// DraftClass помечает происхождение черновика.
type DraftClass string

const (
	DraftNew            DraftClass = "new"
	DraftMultipleMember DraftClass = "multiple_member"
)

// AssignmentDraft — извлечённое, ещё не сохранённое задание.
type AssignmentDraft struct {
	CourseID    uuid.UUID
	CourseName  string
	Title       string
	Description string
	Deadline    *time.Time
	SectionCode string
	SenderID    string
	MessageID   string
	Class       DraftClass
}

// UpdateRequest описывает извлечённое обновление существующего задания.
type UpdateRequest struct {
	Keywords       []string
	Changes        string
	NewTitle       string
	NewDescription string
	NewDeadline    *time.Time
	SectionCode    string
	SenderID       string
	MessageID      string
}

// Classification — верхнеуровневый тег результата извлечения.
type Classification string

const (
	ClassNew          Classification = "new"
	ClassUpdate       Classification = "update"
	ClassMultiple     Classification = "multiple"
	ClassUnrecognized Classification = "unrecognized"
)

// ExtractionInput — единый контракт для каждого звена цепочки провайдеров.
type ExtractionInput struct {
	Text        string
	ImageBase64 string
	Context     MessageContext
	Courses     []Course
	Open        []Assignment
	Now         time.Time
}

// ExtractionOutcome — разобранный и провалидированный ответ провайдера.
type ExtractionOutcome struct {
	Class  Classification
	Drafts []AssignmentDraft
	Update *UpdateRequest
}

// ConfidenceTier — уровень уверенности верификации дубликата.
type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceHigh   ConfidenceTier = "high"
)

// MatchResult — ответ верификационного вызова по списку кандидатов.
type MatchResult struct {
	MatchIndex *int
	Confidence ConfidenceTier
	Reason     string
}

// ClarificationSession хранит частично извлечённый черновик,
// ожидающий недостающих полей. На отправителя открыта максимум одна.
type ClarificationSession struct {
	SenderID  string
	Draft     AssignmentDraft
	Missing   []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// InboundMessage — входящее сообщение из транспорта.
type InboundMessage struct {
	ID          string
	ChatID      string
	SenderID    string
	SenderName  string
	Text        string
	ImageBase64 string
	ReceivedAt  time.Time
}

// IngestResult — итог обработки одного кандидатного сообщения.
type IngestResult struct {
	InsertedIDs            []uuid.UUID
	UpdatedIDs             []uuid.UUID
	Inserted               []AssignmentDraft
	ClarificationRequested bool
	MissingFields          []string
	Unrecognized           bool
	UpdateUnmatched        bool
}

// ReminderJob — задача на рассылку напоминания.
type ReminderJob struct {
	Greeting    string    `json:"greeting"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
