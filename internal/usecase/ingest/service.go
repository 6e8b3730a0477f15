package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Service — единая точка входа конвейера: одно кандидатное сообщение
// превращается в вставки, обновления либо сессию уточнения.
type Service struct {
	builder   *ContextBuilder
	chain     *Orchestrator
	resolver  *Resolver
	tracker   *Tracker
	directory domain.CourseDirectory
	history   domain.SenderHistory
	repo      domain.AssignmentRepo
	loc       *time.Location
	logger    zerolog.Logger
	now       func() time.Time

	// Сообщения одного отправителя сериализуются: инвариант «одна сессия
	// уточнения» не должен гоняться сам с собой. Шлюз ёмкости 1 на
	// отправителя, удерживается на всё время обработки. Запись в карте
	// живёт, пока есть держатели или ожидающие, и удаляется на нуле.
	mu    sync.Mutex
	gates map[string]*senderGate
}

type senderGate struct {
	ch   chan struct{}
	refs int
}

// NewService собирает конвейер приёма.
func NewService(
	builder *ContextBuilder,
	chain *Orchestrator,
	resolver *Resolver,
	tracker *Tracker,
	directory domain.CourseDirectory,
	history domain.SenderHistory,
	repo domain.AssignmentRepo,
	loc *time.Location,
	logger zerolog.Logger,
) *Service {
	return &Service{
		builder:   builder,
		chain:     chain,
		resolver:  resolver,
		tracker:   tracker,
		directory: directory,
		history:   history,
		repo:      repo,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
		gates:     make(map[string]*senderGate),
	}
}

// Ingest обрабатывает одно кандидатное сообщение. Терминальный сбой
// извлечения возвращается ошибкой ровно один раз, конвейер его не
// перезапускает.
func (s *Service) Ingest(ctx context.Context, msg domain.InboundMessage) (domain.IngestResult, error) {
	release, err := s.acquireSender(ctx, msg.SenderID)
	if err != nil {
		return domain.IngestResult{}, err
	}
	defer release()

	now := s.now().In(s.loc)

	// Открытая сессия уточнения получает сообщение первой. Если оно не
	// закрывает недостающие поля, старая сессия отменяется, а сообщение
	// обрабатывается как свежий кандидат.
	if session, ok := s.tracker.Peek(msg.SenderID, now); ok {
		if result, filled, err := s.tryFillSession(ctx, session, msg, now); filled || err != nil {
			return result, err
		}
		s.tracker.Close(msg.SenderID)
	}

	mc, courses, err := s.builder.Build(ctx, msg.SenderID, msg.Text, now)
	if err != nil {
		return domain.IngestResult{}, err
	}

	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ingest: не удалось прочитать открытые задания, промпт без них")
		open = nil
	}

	outcome, err := s.chain.Extract(ctx, domain.ExtractionInput{
		Text:        msg.Text,
		ImageBase64: msg.ImageBase64,
		Context:     mc,
		Courses:     courses,
		Open:        open,
		Now:         now,
	})
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("terminal_failure").Inc()
		return domain.IngestResult{}, err
	}

	switch outcome.Class {
	case domain.ClassUnrecognized:
		metrics.IngestMessagesTotal.WithLabelValues("unrecognized").Inc()
		return domain.IngestResult{Unrecognized: true}, nil

	case domain.ClassUpdate:
		// Тег update без тела — нарушение контракта провайдера; сообщение
		// отбрасывается как нераспознанное, конвейер не падает.
		if outcome.Update == nil {
			s.logger.Warn().Msg("ingest: классификация update без тела запроса")
			metrics.IngestMessagesTotal.WithLabelValues("unrecognized").Inc()
			return domain.IngestResult{Unrecognized: true}, nil
		}
		return s.applyUpdate(ctx, msg, *outcome.Update, open)

	default:
		return s.persistDrafts(ctx, msg, mc, outcome.Drafts, now)
	}
}

// tryFillSession пытается закрыть недостающие поля сессии лёгким разбором
// ответа. При успехе заполненный черновик проходит обычную дедупликацию.
func (s *Service) tryFillSession(ctx context.Context, session domain.ClarificationSession, msg domain.InboundMessage, now time.Time) (domain.IngestResult, bool, error) {
	fill := parseFill(msg.Text, session.Missing, s.loc)
	draft := session.Draft

	if fill.Course != "" && draft.CourseID == uuid.Nil {
		course, found, err := s.directory.Resolve(ctx, fill.Course)
		if err != nil {
			return domain.IngestResult{}, false, err
		}
		if found {
			draft.CourseID = course.ID
			draft.CourseName = course.Name
		}
	}
	if fill.Title != "" && draft.Title == "" {
		draft.Title = fill.Title
	}
	if fill.Section != "" && draft.SectionCode == "" {
		draft.SectionCode = fill.Section
	}
	if fill.Deadline != nil && draft.Deadline == nil {
		draft.Deadline = fill.Deadline
	}

	if len(missingFields(draft)) > 0 {
		return domain.IngestResult{}, false, nil
	}

	s.tracker.Close(msg.SenderID)
	var result domain.IngestResult
	if err := s.persistOne(ctx, &result, draft, now); err != nil {
		return domain.IngestResult{}, true, err
	}
	metrics.IngestMessagesTotal.WithLabelValues("clarified").Inc()
	return result, true, nil
}

func (s *Service) applyUpdate(ctx context.Context, msg domain.InboundMessage, upd domain.UpdateRequest, open []domain.Assignment) (domain.IngestResult, error) {
	upd.SenderID = msg.SenderID
	upd.MessageID = msg.ID

	candidates := open
	if upd.SectionCode != "" {
		candidates = nil
		for _, a := range open {
			if a.SectionCode == "" || a.SectionCode == upd.SectionCode {
				candidates = append(candidates, a)
			}
		}
	}

	match, err := s.resolver.Match(ctx, upd, candidates)
	if err != nil {
		s.logger.Warn().Err(err).Strs("keywords", upd.Keywords).Msg("ingest: сопоставление обновления не удалось")
		metrics.IngestMessagesTotal.WithLabelValues("update_unmatched").Inc()
		return domain.IngestResult{UpdateUnmatched: true}, nil
	}
	if match.Confidence != domain.ConfidenceHigh || match.MatchIndex == nil {
		metrics.IngestMessagesTotal.WithLabelValues("update_unmatched").Inc()
		return domain.IngestResult{UpdateUnmatched: true}, nil
	}

	target := candidates[*match.MatchIndex]
	if err := s.repo.ApplyUpdate(ctx, target.ID, upd); err != nil {
		return domain.IngestResult{}, err
	}
	metrics.IngestMessagesTotal.WithLabelValues("updated").Inc()
	return domain.IngestResult{UpdatedIDs: []uuid.UUID{target.ID}}, nil
}

// persistDrafts разводит черновики: полные идут в дедупликацию и запись,
// первый неполный открывает сессию уточнения.
func (s *Service) persistDrafts(ctx context.Context, msg domain.InboundMessage, mc domain.MessageContext, drafts []domain.AssignmentDraft, now time.Time) (domain.IngestResult, error) {
	var result domain.IngestResult

	for _, draft := range drafts {
		draft.SenderID = msg.SenderID
		draft.MessageID = msg.ID

		if err := s.resolveCourse(ctx, &draft, mc); err != nil {
			return result, err
		}
		applyHints(&draft, mc)

		missing := missingFields(draft)
		if len(missing) > 0 {
			if result.ClarificationRequested {
				// Сессия на отправителя одна, остальные неполные черновики
				// этого сообщения теряются.
				s.logger.Warn().Str("title", draft.Title).Strs("missing", missing).
					Msg("ingest: сессия уточнения уже открыта, неполный черновик отброшен")
				continue
			}
			s.tracker.Open(msg.SenderID, draft, missing, now)
			result.ClarificationRequested = true
			result.MissingFields = missing
			continue
		}

		if err := s.persistOne(ctx, &result, draft, now); err != nil {
			return result, err
		}
	}

	switch {
	case result.ClarificationRequested:
		metrics.IngestMessagesTotal.WithLabelValues("clarification").Inc()
	case len(result.UpdatedIDs) > 0:
		metrics.IngestMessagesTotal.WithLabelValues("merged").Inc()
	default:
		metrics.IngestMessagesTotal.WithLabelValues("inserted").Inc()
	}
	return result, nil
}

func (s *Service) persistOne(ctx context.Context, result *domain.IngestResult, draft domain.AssignmentDraft, now time.Time) error {
	matched, err := s.resolver.Resolve(ctx, draft)
	if err != nil {
		return err
	}
	id, err := s.repo.Upsert(ctx, draft, matched)
	if err != nil {
		return err
	}
	if matched != nil {
		result.UpdatedIDs = append(result.UpdatedIDs, id)
	} else {
		result.InsertedIDs = append(result.InsertedIDs, id)
		result.Inserted = append(result.Inserted, draft)
	}
	if draft.SectionCode != "" {
		if err := s.history.Record(ctx, draft.SenderID, draft.CourseID, draft.SectionCode, now); err != nil {
			s.logger.Warn().Err(err).Msg("ingest: запись истории отправителя не удалась")
		}
	}
	return nil
}

// resolveCourse приводит имя курса из черновика к каноническому. Пустое имя
// при единственном курсе в контексте наследует его; иначе курс остаётся
// недостающим полем.
func (s *Service) resolveCourse(ctx context.Context, draft *domain.AssignmentDraft, mc domain.MessageContext) error {
	if draft.CourseName != "" {
		course, found, err := s.directory.Resolve(ctx, draft.CourseName)
		if err != nil {
			return err
		}
		if found {
			draft.CourseID = course.ID
			draft.CourseName = course.Name
			return nil
		}
		draft.CourseName = ""
	}
	if len(mc.CourseHints) == 1 {
		draft.CourseID = mc.CourseHints[0].Course.ID
		draft.CourseName = mc.CourseHints[0].Course.Name
	}
	return nil
}

// applyHints доливает параллель и дедлайн из контекста только в пустые
// поля: подсказки — запасной приор, не перекрытие явного ответа модели.
func applyHints(draft *domain.AssignmentDraft, mc domain.MessageContext) {
	hint, ok := hintFor(draft, mc)
	if draft.SectionCode == "" {
		switch {
		case ok && hint.SectionCode != "":
			draft.SectionCode = hint.SectionCode
		case mc.GlobalSection != "":
			draft.SectionCode = mc.GlobalSection
		}
	}
	if draft.Deadline == nil && ok && hint.DeadlineHint != nil {
		draft.Deadline = hint.DeadlineHint
	}
}

func hintFor(draft *domain.AssignmentDraft, mc domain.MessageContext) (domain.CourseHint, bool) {
	for _, hint := range mc.CourseHints {
		if hint.Course.ID == draft.CourseID || strings.EqualFold(hint.Course.Name, draft.CourseName) {
			return hint, true
		}
	}
	return domain.CourseHint{}, false
}

func missingFields(draft domain.AssignmentDraft) []string {
	var missing []string
	if draft.CourseID == uuid.Nil {
		missing = append(missing, MissingCourse)
	}
	if strings.TrimSpace(draft.Title) == "" {
		missing = append(missing, MissingTitle)
	}
	return missing
}

func (s *Service) acquireSender(ctx context.Context, senderID string) (func(), error) {
	s.mu.Lock()
	gate, ok := s.gates[senderID]
	if !ok {
		gate = &senderGate{ch: make(chan struct{}, 1)}
		s.gates[senderID] = gate
	}
	gate.refs++
	s.mu.Unlock()

	select {
	case gate.ch <- struct{}{}:
		return func() {
			<-gate.ch
			s.releaseGate(senderID, gate)
		}, nil
	case <-ctx.Done():
		s.releaseGate(senderID, gate)
		return nil, ctx.Err()
	}
}

func (s *Service) releaseGate(senderID string, gate *senderGate) {
	s.mu.Lock()
	gate.refs--
	if gate.refs == 0 {
		delete(s.gates, senderID)
	}
	s.mu.Unlock()
}
