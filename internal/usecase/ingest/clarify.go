package ingest

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Имена недостающих полей в сессии уточнения.
const (
	MissingCourse = "course"
	MissingTitle  = "title"
)

// Tracker хранит по одной открытой сессии уточнения на отправителя.
// Мьютекс охраняет только карту и никогда не удерживается через сетевой
// вызов; просроченные сессии вычищаются лениво при доступе и Sweep-ом.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]domain.ClarificationSession
	ttl      time.Duration
}

// NewTracker создаёт трекер с заданным временем жизни сессий.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Tracker{sessions: make(map[string]domain.ClarificationSession), ttl: ttl}
}

// Open открывает сессию для отправителя, молча вытесняя прежнюю:
// сессии никогда не ставятся в очередь и не сливаются.
func (t *Tracker) Open(senderID string, draft domain.AssignmentDraft, missing []string, now time.Time) domain.ClarificationSession {
	session := domain.ClarificationSession{
		SenderID:  senderID,
		Draft:     draft,
		Missing:   missing,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}
	t.mu.Lock()
	_, existed := t.sessions[senderID]
	t.sessions[senderID] = session
	t.mu.Unlock()
	if !existed {
		metrics.ClarificationsOpen.Inc()
	}
	return session
}

// Peek возвращает открытую сессию отправителя, проверяя срок на месте.
func (t *Tracker) Peek(senderID string, now time.Time) (domain.ClarificationSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[senderID]
	if !ok {
		return domain.ClarificationSession{}, false
	}
	if now.After(session.ExpiresAt) {
		delete(t.sessions, senderID)
		metrics.ClarificationsOpen.Dec()
		return domain.ClarificationSession{}, false
	}
	return session, true
}

// Close закрывает сессию отправителя: заполнение и отмена равнозначны.
func (t *Tracker) Close(senderID string) {
	t.mu.Lock()
	_, existed := t.sessions[senderID]
	delete(t.sessions, senderID)
	t.mu.Unlock()
	if existed {
		metrics.ClarificationsOpen.Dec()
	}
}

// Sweep удаляет просроченные сессии и возвращает их количество.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for senderID, session := range t.sessions {
		if now.After(session.ExpiresAt) {
			delete(t.sessions, senderID)
			removed++
		}
	}
	metrics.ClarificationsOpen.Sub(float64(removed))
	return removed
}

var (
	fillCourseRe   = regexp.MustCompile(`(?i)^(?:course|matkul|mata\s+kuliah)\s*[:=]\s*(.+)$`)
	fillTitleRe    = regexp.MustCompile(`(?i)^(?:title|judul)\s*[:=]\s*(.+)$`)
	fillSectionRe  = regexp.MustCompile(`(?i)^(?:parallel|paralel|kode)\s*[:=]\s*([kpr][1-9][0-9]?)$`)
	fillDeadlineRe = regexp.MustCompile(`(?i)^(?:deadline|tenggat)\s*[:=]\s*(.+)$`)
	bareSectionRe  = regexp.MustCompile(`(?i)^[kpr][1-9][0-9]?$`)
)

// fillFields — лёгкое извлечение из ответа на уточняющий вопрос.
// Полный прогон цепочки извлечения здесь не нужен.
type fillFields struct {
	Course   string
	Title    string
	Section  string
	Deadline *time.Time
}

// parseFill разбирает ответ построчно: помеченные поля, голый код
// параллели или дата; непомеченный остаток трактуется как значение
// первого недостающего поля.
func parseFill(text string, missing []string, loc *time.Location) fillFields {
	var out fillFields
	var leftovers []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case fillCourseRe.MatchString(line):
			out.Course = strings.TrimSpace(fillCourseRe.FindStringSubmatch(line)[1])
		case fillTitleRe.MatchString(line):
			out.Title = strings.TrimSpace(fillTitleRe.FindStringSubmatch(line)[1])
		case fillSectionRe.MatchString(line):
			out.Section = strings.ToLower(fillSectionRe.FindStringSubmatch(line)[1])
		case fillDeadlineRe.MatchString(line):
			raw := strings.TrimSpace(fillDeadlineRe.FindStringSubmatch(line)[1])
			out.Deadline = parseFillDeadline(raw, loc)
		case bareSectionRe.MatchString(line):
			out.Section = strings.ToLower(line)
		case parseFillDeadline(line, loc) != nil:
			out.Deadline = parseFillDeadline(line, loc)
		default:
			leftovers = append(leftovers, line)
		}
	}
	if len(leftovers) > 0 {
		leftover := strings.Join(leftovers, " ")
		for _, field := range missing {
			switch field {
			case MissingCourse:
				if out.Course == "" {
					out.Course = leftover
					leftover = ""
				}
			case MissingTitle:
				if out.Title == "" && leftover != "" {
					out.Title = leftover
					leftover = ""
				}
			}
		}
	}
	return out
}

func parseFillDeadline(raw string, loc *time.Location) *time.Time {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02", "02/01/2006", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			if layout != "2006-01-02 15:04" {
				t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, loc)
			}
			return &t
		}
	}
	return nil
}
