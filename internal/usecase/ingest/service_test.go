package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
)

type serviceFixture struct {
	service  *Service
	repo     *stubRepo
	history  *stubHistory
	provider *stubProvider
	verifier *stubVerifier
	tracker  *Tracker
	courses  []domain.Course
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	courses := testCourses()
	directory := &stubDirectory{courses: courses}
	history := &stubHistory{stats: map[string][]domain.SenderSectionStat{
		historyKey("sender-1", courses[0].ID): {{SectionCode: "k1", Count: 5}},
	}}
	repo := &stubRepo{}
	provider := &stubProvider{name: "primary"}
	verifier := &stubVerifier{name: "verify", result: domain.MatchResult{Confidence: domain.ConfidenceLow}}
	tracker := NewTracker(30 * time.Minute)

	builder := NewContextBuilder(directory, history, &stubOracle{}, time.UTC, zerolog.Nop())
	chain := NewOrchestrator([]domain.ExtractionProvider{provider}, time.Second, zerolog.Nop())
	resolver := NewResolver(repo, []domain.Verifier{verifier}, 0.2, 3, zerolog.Nop())
	service := NewService(builder, chain, resolver, tracker, directory, history, repo, time.UTC, zerolog.Nop())

	fixture := &serviceFixture{
		service:  service,
		repo:     repo,
		history:  history,
		provider: provider,
		verifier: verifier,
		tracker:  tracker,
		courses:  courses,
		now:      time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
	}
	service.now = func() time.Time { return fixture.now }
	return fixture
}

func message(id, text string) domain.InboundMessage {
	return domain.InboundMessage{ID: id, ChatID: "chat-1", SenderID: "sender-1", Text: text}
}

// Сценарий A: история отправителя доставляет параллель, относительный
// дедлайн разрешается в завтрашние 10:00.
func TestIngestHistorySectionAndRelativeDeadline(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{CourseName: "Pemrograman", Title: "LKP 15", Class: domain.DraftNew}},
	}

	result, err := f.service.Ingest(context.Background(), message("m1", "Pemrog LKP 15 besok jam 10"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.InsertedIDs) != 1 || len(f.repo.inserted) != 1 {
		t.Fatalf("ожидали одну вставку: %+v", result)
	}
	draft := f.repo.inserted[0]
	if draft.CourseID != f.courses[0].ID {
		t.Fatalf("курс должен разрешиться в канонический: %+v", draft)
	}
	if draft.SectionCode != "k1" {
		t.Fatalf("параллель должна прийти из истории: %q", draft.SectionCode)
	}
	want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	if draft.Deadline == nil || !draft.Deadline.Equal(want) {
		t.Fatalf("ожидали дедлайн %v, получили %v", want, draft.Deadline)
	}
	if draft.SenderID != "sender-1" || draft.MessageID != "m1" {
		t.Fatalf("происхождение должно проставляться: %+v", draft)
	}
	if len(f.history.recorded) != 1 || f.history.recorded[0].SectionCode != "k1" {
		t.Fatalf("использование параллели должно записываться: %+v", f.history.recorded)
	}
}

// Сценарий B: повторное сообщение о том же задании сливается, а не
// вставляется второй строкой.
func TestIngestDuplicateMergesOnHighConfidence(t *testing.T) {
	f := newServiceFixture(t)
	existing := domain.Assignment{ID: uuid.New(), CourseID: f.courses[0].ID, CourseName: "Pemrograman", Title: "LKP 15", SectionCode: "k1"}
	f.repo.open = []domain.Assignment{existing}
	idx := 0
	f.verifier.result = domain.MatchResult{MatchIndex: &idx, Confidence: domain.ConfidenceHigh}
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{CourseName: "Pemrograman", Title: "LKP 15 - Recursion", SectionCode: "k1", Class: domain.DraftNew}},
	}

	result, err := f.service.Ingest(context.Background(), message("m2", "LKP 15 - Recursion pemrog k1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.InsertedIDs) != 0 {
		t.Fatalf("вставок быть не должно: %+v", result)
	}
	if len(result.UpdatedIDs) != 1 || result.UpdatedIDs[0] != existing.ID {
		t.Fatalf("ожидали слияние с %s: %+v", existing.ID, result)
	}
	if len(f.repo.merged) != 1 {
		t.Fatalf("репозиторий должен получить слияние: %+v", f.repo.merged)
	}
}

// Сценарий D: черновик без курса открывает сессию уточнения; ответ с
// названием курса закрывает её и доводит запись до вставки.
func TestIngestClarificationRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{Title: "Essay tentang AI", Class: domain.DraftNew}},
	}

	result, err := f.service.Ingest(context.Background(), message("m3", "jangan lupa essay tentang AI ya"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.ClarificationRequested {
		t.Fatalf("ожидали запрос уточнения: %+v", result)
	}
	if len(result.MissingFields) != 1 || result.MissingFields[0] != MissingCourse {
		t.Fatalf("ожидали недостающий курс: %+v", result.MissingFields)
	}
	if len(f.repo.inserted) != 0 {
		t.Fatalf("неполный черновик не персистится")
	}

	result, err = f.service.Ingest(context.Background(), message("m4", "Pemrograman"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.InsertedIDs) != 1 {
		t.Fatalf("заполненная сессия должна дать вставку: %+v", result)
	}
	if f.repo.inserted[0].CourseID != f.courses[0].ID || f.repo.inserted[0].Title != "Essay tentang AI" {
		t.Fatalf("черновик должен собраться целиком: %+v", f.repo.inserted[0])
	}
	if _, ok := f.tracker.Peek("sender-1", f.now); ok {
		t.Fatalf("сессия должна закрыться после заполнения")
	}
	if f.provider.calls != 1 {
		t.Fatalf("заполнение не перезапускает цепочку извлечения: %d", f.provider.calls)
	}
}

// Просроченная сессия не перехватывает ответ: сообщение идёт полным
// конвейером и открывает новую сессию.
func TestIngestClarificationExpiryOpensFreshSession(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{Title: "Essay tentang AI", Class: domain.DraftNew}},
	}

	if _, err := f.service.Ingest(context.Background(), message("m5", "jangan lupa essay ya")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f.now = f.now.Add(31 * time.Minute)

	result, err := f.service.Ingest(context.Background(), message("m6", "jangan lupa essay ya"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.ClarificationRequested {
		t.Fatalf("ожидали новую сессию: %+v", result)
	}
	if f.provider.calls != 2 {
		t.Fatalf("после истечения сессии конвейер запускается заново: %d", f.provider.calls)
	}
}

// Сообщение, не закрывающее недостающие поля, отменяет старую сессию и
// обрабатывается как свежий кандидат.
func TestIngestClarificationSuperseded(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{Title: "Essay tentang AI", Class: domain.DraftNew}},
	}
	if _, err := f.service.Ingest(context.Background(), message("m7", "jangan lupa essay ya")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassNew,
		Drafts: []domain.AssignmentDraft{{CourseName: "Struktur Data", Title: "Tugas 3", Class: domain.DraftNew}},
	}
	result, err := f.service.Ingest(context.Background(), message("m8", "strukdat tugas 3 kumpul besok"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.InsertedIDs) != 1 || f.repo.inserted[0].Title != "Tugas 3" {
		t.Fatalf("новое сообщение обрабатывается как свежий кандидат: %+v", result)
	}
	session, ok := f.tracker.Peek("sender-1", f.now)
	if ok {
		t.Fatalf("старая сессия должна быть отменена, осталась: %+v", session)
	}
}

func TestIngestMultipleFanOut(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{
		Class: domain.ClassMultiple,
		Drafts: []domain.AssignmentDraft{
			{CourseName: "Pemrograman", Title: "LKP 14", SectionCode: "k1", Class: domain.DraftMultipleMember},
			{CourseName: "Struktur Data", Title: "Tugas 3", SectionCode: "k2", Class: domain.DraftMultipleMember},
		},
	}

	result, err := f.service.Ingest(context.Background(), message("m9", "pemrog lkp 14 k1, strukdat tugas 3 k2"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.InsertedIDs) != 2 {
		t.Fatalf("каждый элемент идёт своим маршрутом: %+v", result)
	}
	if f.repo.inserted[0].CourseID == f.repo.inserted[1].CourseID {
		t.Fatalf("курсы должны разрешиться независимо")
	}
}

func TestIngestUpdateRoute(t *testing.T) {
	f := newServiceFixture(t)
	existing := domain.Assignment{ID: uuid.New(), CourseID: f.courses[0].ID, CourseName: "Pemrograman", Title: "LKP 13", SectionCode: "k1"}
	f.repo.open = []domain.Assignment{existing}
	idx := 0
	f.verifier.result = domain.MatchResult{MatchIndex: &idx, Confidence: domain.ConfidenceHigh}
	deadline := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	f.provider.outcome = domain.ExtractionOutcome{
		Class: domain.ClassUpdate,
		Update: &domain.UpdateRequest{
			Keywords:    []string{"pemrog", "lkp 13"},
			Changes:     "deadline diundur",
			NewDeadline: &deadline,
		},
	}

	result, err := f.service.Ingest(context.Background(), message("m10", "lkp 13 pemrog diundur ke tanggal 30"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.UpdatedIDs) != 1 || result.UpdatedIDs[0] != existing.ID {
		t.Fatalf("ожидали обновление %s: %+v", existing.ID, result)
	}
	upd, ok := f.repo.updates[existing.ID]
	if !ok {
		t.Fatalf("обновление должно дойти до репозитория")
	}
	if upd.NewDeadline == nil || !upd.NewDeadline.Equal(deadline) {
		t.Fatalf("новый дедлайн должен сохраниться: %+v", upd)
	}
	if upd.SenderID != "sender-1" || upd.MessageID != "m10" {
		t.Fatalf("происхождение обновления должно проставляться: %+v", upd)
	}
}

func TestIngestUpdateUnmatchedBelowHigh(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.open = []domain.Assignment{{ID: uuid.New(), CourseID: f.courses[0].ID, Title: "LKP 13"}}
	idx := 0
	f.verifier.result = domain.MatchResult{MatchIndex: &idx, Confidence: domain.ConfidenceMedium}
	f.provider.outcome = domain.ExtractionOutcome{
		Class:  domain.ClassUpdate,
		Update: &domain.UpdateRequest{Keywords: []string{"lkp 13"}, Changes: "diundur"},
	}

	result, err := f.service.Ingest(context.Background(), message("m11", "lkp 13 diundur"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.UpdateUnmatched || len(result.UpdatedIDs) != 0 {
		t.Fatalf("medium не обновляет: %+v", result)
	}
	if len(f.repo.updates) != 0 {
		t.Fatalf("репозиторий не должен трогаться: %+v", f.repo.updates)
	}
}

// Тег update без тела запроса — нарушение контракта провайдера; сообщение
// отбрасывается как нераспознанное, а не роняет конвейер.
func TestIngestUpdateWithoutBody(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{Class: domain.ClassUpdate}

	result, err := f.service.Ingest(context.Background(), message("m14", "lkp diundur"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Unrecognized {
		t.Fatalf("ожидали unrecognized: %+v", result)
	}
	if len(f.repo.updates) != 0 {
		t.Fatalf("репозиторий не должен трогаться: %+v", f.repo.updates)
	}
}

// Второй неполный черновик одного сообщения теряется, но потеря фиксируется
// в логе.
func TestIngestSecondIncompleteDraftDropLogged(t *testing.T) {
	f := newServiceFixture(t)
	var buf bytes.Buffer
	f.service.logger = zerolog.New(&buf)
	f.provider.outcome = domain.ExtractionOutcome{
		Class: domain.ClassMultiple,
		Drafts: []domain.AssignmentDraft{
			{Title: "Essay tentang AI", Class: domain.DraftMultipleMember},
			{Title: "Resume jurnal", Class: domain.DraftMultipleMember},
		},
	}

	result, err := f.service.Ingest(context.Background(), message("m15", "essay AI dan resume jurnal"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.ClarificationRequested {
		t.Fatalf("ожидали запрос уточнения: %+v", result)
	}
	session, ok := f.tracker.Peek("sender-1", f.now)
	if !ok || session.Draft.Title != "Essay tentang AI" {
		t.Fatalf("сессия открывается по первому черновику: %+v", session)
	}
	if !strings.Contains(buf.String(), "отброшен") {
		t.Fatalf("потеря второго черновика должна попасть в лог: %s", buf.String())
	}
}

func TestIngestUnrecognized(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.outcome = domain.ExtractionOutcome{Class: domain.ClassUnrecognized}

	result, err := f.service.Ingest(context.Background(), message("m12", "wkwkwk"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Unrecognized {
		t.Fatalf("ожидали unrecognized: %+v", result)
	}
	if len(f.repo.inserted) != 0 {
		t.Fatalf("записей быть не должно")
	}
}

func TestIngestTerminalExtractionSurfacesOnce(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.err = &domain.TransientError{Provider: "primary", Err: errors.New("timeout")}

	_, err := f.service.Ingest(context.Background(), message("m13", "pemrog lkp 15"))
	if !errors.Is(err, domain.ErrTerminalExtraction) {
		t.Fatalf("ожидали терминальный сбой: %v", err)
	}
	if f.provider.calls != 1 {
		t.Fatalf("конвейер не перезапускается сам: %d", f.provider.calls)
	}
}

func TestIngestSerializesSameSender(t *testing.T) {
	f := newServiceFixture(t)
	release, err := f.service.acquireSender(context.Background(), "sender-1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.service.acquireSender(ctx, "sender-1"); err == nil {
		t.Fatalf("второй захват того же отправителя должен ждать")
	}

	// Другой отправитель проходит свободно.
	otherRelease, err := f.service.acquireSender(context.Background(), "sender-2")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	otherRelease()

	release()
	release2, err := f.service.acquireSender(context.Background(), "sender-1")
	if err != nil {
		t.Fatalf("после освобождения захват проходит: %v", err)
	}
	release2()
}

// Карта шлюзов не растёт бесконечно: запись удаляется, когда у неё нет ни
// держателей, ни ожидающих.
func TestIngestGateEvictedWhenIdle(t *testing.T) {
	f := newServiceFixture(t)

	release, err := f.service.acquireSender(context.Background(), "sender-1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Ожидающий, снятый по контексту, тоже не оставляет следа.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.service.acquireSender(ctx, "sender-1"); err == nil {
		t.Fatalf("второй захват должен отвалиться по контексту")
	}
	release()

	f.service.mu.Lock()
	remaining := len(f.service.gates)
	f.service.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("свободные шлюзы должны удаляться из карты: %d", remaining)
	}
}
