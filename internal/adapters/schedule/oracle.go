package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"tugas-bot/internal/domain"
)

// Oracle отвечает на вопрос «когда следующая пара» по статичному
// недельному расписанию из JSON-файла.
type Oracle struct {
	// (канонический заголовок курса из файла, параллель) -> слоты занятий
	slots map[slotKey][]meetingSlot
}

type slotKey struct {
	course  string
	section string
}

type meetingSlot struct {
	weekday time.Weekday
	hour    int
	minute  int
}

type scheduleEntry struct {
	Course   string `json:"course"`
	Parallel string `json:"parallel"`
	Schedule string `json:"schedule"` // "08:00-09:40"
}

var weekdayNames = map[string]time.Weekday{
	"Senin":  time.Monday,
	"Selasa": time.Tuesday,
	"Rabu":   time.Wednesday,
	"Kamis":  time.Thursday,
	"Jumat":  time.Friday,
	"Sabtu":  time.Saturday,
	"Minggu": time.Sunday,
}

// LoadFromFile читает недельное расписание вида {"Senin":[...], ...}.
func LoadFromFile(path string) (*Oracle, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение файла расписания: %w", err)
	}
	var data map[string][]scheduleEntry
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("разбор расписания: %w", err)
	}
	oracle := &Oracle{slots: make(map[slotKey][]meetingSlot)}
	for dayName, entries := range data {
		weekday, ok := weekdayNames[dayName]
		if !ok {
			continue
		}
		for _, entry := range entries {
			hour, minute, ok := parseStartTime(entry.Schedule)
			if !ok {
				continue
			}
			key := slotKey{
				course:  normalizeCourseTitle(entry.Course),
				section: strings.ToLower(strings.TrimSpace(entry.Parallel)),
			}
			oracle.slots[key] = append(oracle.slots[key], meetingSlot{weekday: weekday, hour: hour, minute: minute})
		}
	}
	return oracle, nil
}

// NextMeeting возвращает время ближайшей пары курса в указанной параллели
// строго после after. Пара в тот же день недели считается на следующей неделе.
func (o *Oracle) NextMeeting(course domain.Course, sectionCode string, after time.Time) (time.Time, bool) {
	section := strings.ToLower(strings.TrimSpace(sectionCode))
	if section == "" {
		return time.Time{}, false
	}
	var matched []meetingSlot
	for key, slots := range o.slots {
		if key.section != section {
			continue
		}
		if courseMatches(key.course, course) {
			matched = append(matched, slots...)
		}
	}
	if len(matched) == 0 {
		return time.Time{}, false
	}
	var best time.Time
	for _, slot := range matched {
		candidate := nextOccurrence(slot, after)
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best, true
}

func nextOccurrence(slot meetingSlot, after time.Time) time.Time {
	days := int(slot.weekday) - int(after.Weekday())
	if days <= 0 {
		days += 7
	}
	day := after.AddDate(0, 0, days)
	return time.Date(day.Year(), day.Month(), day.Day(), slot.hour, slot.minute, 0, 0, after.Location())
}

// courseMatches сопоставляет заголовок из файла («KOM120C - Pemrograman»)
// с канонической дисциплиной по имени и алиасам.
func courseMatches(title string, course domain.Course) bool {
	lowered := strings.ToLower(title)
	if strings.Contains(lowered, strings.ToLower(course.Name)) {
		return true
	}
	for _, alias := range course.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias != "" && strings.Contains(lowered, alias) {
			return true
		}
	}
	return false
}

func normalizeCourseTitle(raw string) string {
	return strings.TrimSpace(raw)
}

func parseStartTime(raw string) (int, int, bool) {
	start := strings.TrimSpace(strings.SplitN(raw, "-", 2)[0])
	parsed, err := time.Parse("15:04", start)
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}
