package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
)

// ContextBuilder собирает MessageContext перед дорогим извлечением.
// Любая внутренняя неоднозначность деградирует в unknown/null:
// построитель контекста никогда не роняет конвейер.
type ContextBuilder struct {
	directory domain.CourseDirectory
	history   domain.SenderHistory
	oracle    domain.ScheduleOracle
	loc       *time.Location
	logger    zerolog.Logger
}

// NewContextBuilder создаёт построитель контекста.
func NewContextBuilder(directory domain.CourseDirectory, history domain.SenderHistory, oracle domain.ScheduleOracle, loc *time.Location, logger zerolog.Logger) *ContextBuilder {
	return &ContextBuilder{directory: directory, history: history, oracle: oracle, loc: loc, logger: logger}
}

const (
	confidenceExplicit = 1.0
	confidenceHistory  = 0.8
)

var (
	sectionRe = regexp.MustCompile(`\b[kpr][1-9][0-9]?\b`)

	explicitDateRe = regexp.MustCompile(`(?:\b\d{1,2}\s*[/-]\s*\d{1,2}\b)|(?:\b\d{4}-\d{2}-\d{2}\b)|(?:\btanggal\s+\d{1,2}\b)|(?:\b\d{1,2}\s+(?:januari|februari|maret|april|mei|juni|juli|agustus|september|oktober|november|desember|january|february|march|april|may|june|july|august|october|december)\b)`)

	nextMeetingRe = regexp.MustCompile(`sebelum\s+(?:pertemuan|kelas|praktikum)|pertemuan\s+(?:depan|selanjutnya|berikutnya)|kelas\s+(?:depan|selanjutnya|berikutnya)|before\s+(?:the\s+)?next\s+(?:class|meeting|session)|next\s+meeting`)

	relativeDayRe = regexp.MustCompile(`\b(besok|lusa|hari\s+ini|malam\s+ini|tomorrow|today|tonight)\b|minggu\s+depan|next\s+week|\b(\d{1,2})\s+hari\s+lagi\b|in\s+(\d{1,2})\s+days?`)

	hourRe = regexp.MustCompile(`\b(?:jam|pukul)\s*(\d{1,2})(?:[:.](\d{2}))?\s*(pagi|siang|sore|malam)?`)
)

// Build выводит подсказки по параллелям и дедлайнам для каждого упомянутого
// курса независимо. Подсказки одного курса никогда не заимствуются соседним.
func (b *ContextBuilder) Build(ctx context.Context, senderID, text string, now time.Time) (domain.MessageContext, []domain.Course, error) {
	courses, err := b.directory.ListCourses(ctx)
	if err != nil {
		return domain.MessageContext{}, nil, err
	}

	lowered := strings.ToLower(text)
	mentioned := matchCourses(lowered, courses)

	mc := domain.MessageContext{
		SectionSource: domain.SectionUnknown,
		DeadlineType:  classifyDeadline(lowered),
	}

	segments := splitSegments(lowered)
	for _, course := range mentioned {
		hint := domain.CourseHint{
			Course:        course,
			SectionSource: domain.SectionUnknown,
			DeadlineType:  mc.DeadlineType,
		}
		if code := explicitSection(segments, lowered, course, len(mentioned)); code != "" {
			hint.SectionCode = code
			hint.SectionConfidence = confidenceExplicit
			hint.SectionSource = domain.SectionExplicit
		} else if code, conf := b.historySection(ctx, senderID, course); code != "" {
			hint.SectionCode = code
			hint.SectionConfidence = conf
			hint.SectionSource = domain.SectionHistory
		}

		switch mc.DeadlineType {
		case domain.DeadlineNextMeeting:
			if meeting, ok := b.oracle.NextMeeting(course, hint.SectionCode, now); ok {
				hint.DeadlineHint = &meeting
			} else {
				hint.DeadlineType = domain.DeadlineUnknown
			}
		case domain.DeadlineRelative:
			if resolved, ok := resolveRelative(lowered, now.In(b.loc)); ok {
				hint.DeadlineHint = &resolved
			} else {
				hint.DeadlineType = domain.DeadlineUnknown
			}
		}
		mc.CourseHints = append(mc.CourseHints, hint)
	}

	mc.GlobalSection, mc.SectionConfidence, mc.SectionSource = globalSection(mc.CourseHints)
	return mc, courses, nil
}

func (b *ContextBuilder) historySection(ctx context.Context, senderID string, course domain.Course) (string, float64) {
	stats, err := b.history.TopSections(ctx, senderID, course.ID, 1)
	if err != nil {
		b.logger.Warn().Err(err).Str("course", course.Name).Msg("ingest: история отправителя недоступна, подсказка опущена")
		return "", 0
	}
	if len(stats) == 0 {
		return "", 0
	}
	return stats[0].SectionCode, confidenceHistory
}

// matchCourses находит упомянутые курсы по имени или алиасу. Ненайденные
// курсы отбрасываются, никогда не придумываются.
func matchCourses(lowered string, courses []domain.Course) []domain.Course {
	var out []domain.Course
	for _, course := range courses {
		if courseMentioned(lowered, course) {
			out = append(out, course)
		}
	}
	return out
}

func courseMentioned(lowered string, course domain.Course) bool {
	if name := strings.ToLower(course.Name); name != "" && strings.Contains(lowered, name) {
		return true
	}
	for _, alias := range course.Aliases {
		if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" && strings.Contains(lowered, alias) {
			return true
		}
	}
	return false
}

func splitSegments(lowered string) []string {
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
}

// explicitSection ищет код параллели в том же сегменте, где упомянут курс.
// Для сообщения с единственным курсом подходит код из любого места.
func explicitSection(segments []string, lowered string, course domain.Course, mentionedCount int) string {
	for _, segment := range segments {
		if !courseMentioned(segment, course) {
			continue
		}
		if code := sectionRe.FindString(segment); code != "" {
			return code
		}
	}
	if mentionedCount == 1 {
		codes := sectionRe.FindAllString(lowered, 2)
		if len(codes) == 1 {
			return codes[0]
		}
	}
	return ""
}

// globalSection заполняется только при единогласии всех догадок.
func globalSection(hints []domain.CourseHint) (string, float64, domain.SectionSource) {
	if len(hints) == 0 {
		return "", 0, domain.SectionUnknown
	}
	code := hints[0].SectionCode
	confidence := hints[0].SectionConfidence
	source := domain.SectionHistory
	for _, hint := range hints {
		if hint.SectionCode == "" || hint.SectionCode != code {
			return "", 0, domain.SectionUnknown
		}
		if hint.SectionConfidence < confidence {
			confidence = hint.SectionConfidence
		}
		if hint.SectionSource == domain.SectionExplicit {
			source = domain.SectionExplicit
		}
	}
	return code, confidence, source
}

func classifyDeadline(lowered string) domain.DeadlineType {
	switch {
	case explicitDateRe.MatchString(lowered):
		return domain.DeadlineExplicit
	case nextMeetingRe.MatchString(lowered):
		return domain.DeadlineNextMeeting
	case relativeDayRe.MatchString(lowered):
		return domain.DeadlineRelative
	default:
		return domain.DeadlineUnknown
	}
}

// resolveRelative переводит относительную формулировку в абсолютную метку.
// Час берётся из «jam N», иначе конец дня.
func resolveRelative(lowered string, now time.Time) (time.Time, bool) {
	m := relativeDayRe.FindStringSubmatch(lowered)
	if m == nil {
		return time.Time{}, false
	}

	days := 0
	switch {
	case m[1] == "besok" || m[1] == "tomorrow":
		days = 1
	case m[1] == "lusa":
		days = 2
	case m[1] != "":
		days = 0 // hari ini / today / tonight / malam ini
	case m[2] != "":
		days, _ = strconv.Atoi(m[2])
	case m[3] != "":
		days, _ = strconv.Atoi(m[3])
	default:
		days = 7 // minggu depan / next week
	}

	hour, minute := 23, 59
	if hm := hourRe.FindStringSubmatch(lowered); hm != nil {
		hour, _ = strconv.Atoi(hm[1])
		if hm[2] != "" {
			minute, _ = strconv.Atoi(hm[2])
		} else {
			minute = 0
		}
		if (hm[3] == "malam" || hm[3] == "sore") && hour < 12 {
			hour += 12
		}
	}
	target := now.AddDate(0, 0, days)
	return time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, now.Location()), true
}
