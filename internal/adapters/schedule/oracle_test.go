package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"tugas-bot/internal/domain"
)

const sampleSchedule = `{
  "Senin": [
    {"course": "KOM120C - Pemrograman", "parallel": "K1", "schedule": "08:00-09:40"}
  ],
  "Rabu": [
    {"course": "KOM120H - Struktur Data", "parallel": "K2", "schedule": "13:00-14:40"},
    {"course": "KOM120C - Pemrograman", "parallel": "K1", "schedule": "10:00-11:40"}
  ]
}`

func writeSchedule(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte(sampleSchedule), 0o600); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}
	return path
}

func TestNextMeetingPicksEarliestSlot(t *testing.T) {
	oracle, err := LoadFromFile(writeSchedule(t))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	course := domain.Course{ID: uuid.New(), Name: "Pemrograman", Aliases: []string{"pemrog"}}
	// Вторник: ближайшая пара — среда 10:00, а не понедельник следующей недели.
	after := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	got, ok := oracle.NextMeeting(course, "k1", after)
	if !ok {
		t.Fatalf("ожидали найденную пару")
	}
	want := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextMeetingSameWeekdayRollsToNextWeek(t *testing.T) {
	oracle, err := LoadFromFile(writeSchedule(t))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	course := domain.Course{ID: uuid.New(), Name: "Struktur Data", Aliases: []string{"strukdat"}}
	// Среда: пара K2 в ту же среду уходит на следующую неделю.
	after := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	got, ok := oracle.NextMeeting(course, "K2", after)
	if !ok {
		t.Fatalf("ожидали найденную пару")
	}
	want := time.Date(2026, 9, 2, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextMeetingUnknownSection(t *testing.T) {
	oracle, err := LoadFromFile(writeSchedule(t))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	course := domain.Course{ID: uuid.New(), Name: "Pemrograman"}
	if _, ok := oracle.NextMeeting(course, "k3", time.Now()); ok {
		t.Fatalf("не ожидали пару для неизвестной параллели")
	}
	if _, ok := oracle.NextMeeting(course, "", time.Now()); ok {
		t.Fatalf("не ожидали пару без параллели")
	}
}
