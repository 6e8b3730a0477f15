package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CourseDirectory разрешает имя или алиас в каноническую дисциплину.
type CourseDirectory interface {
	Resolve(ctx context.Context, nameOrAlias string) (Course, bool, error)
	ListCourses(ctx context.Context) ([]Course, error)
}

// ScheduleOracle отвечает на вопрос «когда следующая пара курса/параллели».
type ScheduleOracle interface {
	NextMeeting(course Course, sectionCode string, after time.Time) (time.Time, bool)
}

// SenderHistory читает и пополняет факты (отправитель, курс, параллель).
type SenderHistory interface {
	TopSections(ctx context.Context, senderID string, courseID uuid.UUID, limit int) ([]SenderSectionStat, error)
	Record(ctx context.Context, senderID string, courseID uuid.UUID, sectionCode string, at time.Time) error
}

// AssignmentRepo — узкий контракт чтения/записи заданий.
type AssignmentRepo interface {
	FindOpenCandidates(ctx context.Context, courseID uuid.UUID, sectionCode string) ([]Assignment, error)
	ListOpen(ctx context.Context) ([]Assignment, error)
	Upsert(ctx context.Context, draft AssignmentDraft, matchedID *uuid.UUID) (uuid.UUID, error)
	ApplyUpdate(ctx context.Context, id uuid.UUID, upd UpdateRequest) error
	MarkComplete(ctx context.Context, id uuid.UUID, done bool) error
	LastCompleted(ctx context.Context) (Assignment, bool, error)
}

// ExtractionProvider — одно звено цепочки языкового извлечения.
// Звенья различаются стоимостью, задержкой и модальностью, но не контрактом.
type ExtractionProvider interface {
	Name() string
	SupportsImage() bool
	Extract(ctx context.Context, in ExtractionInput) (ExtractionOutcome, error)
}

// Verifier подтверждает или опровергает совпадение черновика с кандидатами.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, title, description, changes string, keywords []string, candidates []Assignment) (MatchResult, error)
}

// Messenger отправляет текст в чат транспорта.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Cache используется для идемпотентности и простых TTL-замков.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// ReminderQueue — очередь задач на напоминания.
type ReminderQueue interface {
	Enqueue(ctx context.Context, job ReminderJob) error
	Pop(ctx context.Context) (ReminderJob, error)
}
