package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/usecase/classify"
)

type stubRepo struct {
	open          []domain.Assignment
	lastCompleted *domain.Assignment
	completed     []uuid.UUID
	reverted      []uuid.UUID
}

func (r *stubRepo) FindOpenCandidates(context.Context, uuid.UUID, string) ([]domain.Assignment, error) {
	return nil, nil
}

func (r *stubRepo) ListOpen(context.Context) ([]domain.Assignment, error) {
	return r.open, nil
}

func (r *stubRepo) Upsert(context.Context, domain.AssignmentDraft, *uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, errors.New("не используется")
}

func (r *stubRepo) ApplyUpdate(context.Context, uuid.UUID, domain.UpdateRequest) error {
	return errors.New("не используется")
}

func (r *stubRepo) MarkComplete(_ context.Context, id uuid.UUID, done bool) error {
	if done {
		r.completed = append(r.completed, id)
	} else {
		r.reverted = append(r.reverted, id)
	}
	return nil
}

func (r *stubRepo) LastCompleted(context.Context) (domain.Assignment, bool, error) {
	if r.lastCompleted == nil {
		return domain.Assignment{}, false, nil
	}
	return *r.lastCompleted, true, nil
}

type stubHealth struct {
	err error
}

func (h *stubHealth) Ping(context.Context) error { return h.err }

func fixedDeadline(t time.Time) *time.Time { return &t }

func newTestService(repo *stubRepo, health *stubHealth, now time.Time) *Service {
	if health == nil {
		health = &stubHealth{}
	}
	s := NewService(repo, health, time.UTC, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestHandlePing(t *testing.T) {
	s := newTestService(&stubRepo{}, &stubHealth{}, time.Now())
	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdPing})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "OK") {
		t.Fatalf("ожидали здоровый ответ: %q", reply)
	}

	s = newTestService(&stubRepo{}, &stubHealth{err: errors.New("down")}, time.Now())
	reply, _ = s.Handle(context.Background(), classify.Result{Command: classify.CmdPing})
	if !strings.Contains(reply, "bermasalah") {
		t.Fatalf("ожидали ответ о проблеме: %q", reply)
	}
}

func TestHandleListAndDone(t *testing.T) {
	first := domain.Assignment{ID: uuid.New(), CourseName: "Pemrograman", Title: "LKP 15", SectionCode: "k1",
		Deadline: fixedDeadline(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))}
	second := domain.Assignment{ID: uuid.New(), CourseName: "Struktur Data", Title: "Tugas 3"}
	repo := &stubRepo{open: []domain.Assignment{first, second}}
	s := newTestService(repo, nil, time.Now())

	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdList})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "1. [Pemrograman] LKP 15 (K1)") || !strings.Contains(reply, "2. [Struktur Data] Tugas 3") {
		t.Fatalf("неожиданный список: %q", reply)
	}
	if !strings.Contains(reply, "tanpa deadline") {
		t.Fatalf("задание без дедлайна должно помечаться: %q", reply)
	}

	reply, err = s.Handle(context.Background(), classify.Result{Command: classify.CmdDone, Ordinal: 2})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "Tugas 3") {
		t.Fatalf("ответ должен называть задание: %q", reply)
	}
	if len(repo.completed) != 1 || repo.completed[0] != second.ID {
		t.Fatalf("нумерация #done совпадает со списком: %+v", repo.completed)
	}

	reply, err = s.Handle(context.Background(), classify.Result{Command: classify.CmdDone, Ordinal: 9})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "tidak ada") {
		t.Fatalf("номер вне списка должен вежливо отклоняться: %q", reply)
	}
}

func TestHandleUndo(t *testing.T) {
	last := domain.Assignment{ID: uuid.New(), CourseName: "Pemrograman", Title: "LKP 15"}
	repo := &stubRepo{lastCompleted: &last}
	s := newTestService(repo, nil, time.Now())

	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdUndo})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "LKP 15") || !strings.Contains(reply, "belum selesai") {
		t.Fatalf("ответ должен называть возвращённое задание: %q", reply)
	}
	if len(repo.reverted) != 1 || repo.reverted[0] != last.ID {
		t.Fatalf("последнее выполненное должно снова открыться: %+v", repo.reverted)
	}
}

func TestHandleUndoWithoutCompleted(t *testing.T) {
	repo := &stubRepo{}
	s := newTestService(repo, nil, time.Now())

	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdUndo})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "Tidak ada") {
		t.Fatalf("без выполненных заданий #undo вежливо отказывает: %q", reply)
	}
	if len(repo.reverted) != 0 {
		t.Fatalf("репозиторий не должен трогаться: %+v", repo.reverted)
	}
}

func TestHandleToday(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	repo := &stubRepo{open: []domain.Assignment{
		{ID: uuid.New(), CourseName: "Pemrograman", Title: "LKP 14",
			Deadline: fixedDeadline(time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC))},
		{ID: uuid.New(), CourseName: "Struktur Data", Title: "Tugas 3",
			Deadline: fixedDeadline(time.Date(2026, 8, 26, 23, 59, 0, 0, time.UTC))},
	}}
	s := newTestService(repo, nil, now)

	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdToday})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "LKP 14") || strings.Contains(reply, "Tugas 3") {
		t.Fatalf("только сегодняшние дедлайны: %q", reply)
	}
}

func TestHandleExpand(t *testing.T) {
	repo := &stubRepo{open: []domain.Assignment{{
		ID: uuid.New(), CourseName: "Pemrograman", Title: "LKP 15", SectionCode: "k1",
		Description: "Kerjakan modul rekursi",
	}}}
	s := newTestService(repo, nil, time.Now())

	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdExpand, Ordinal: 1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, want := range []string{"LKP 15", "Pemrograman", "K1", "Kerjakan modul rekursi"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("детализация должна содержать %q: %q", want, reply)
		}
	}
}

func TestHandleUnknownSuggests(t *testing.T) {
	s := newTestService(&stubRepo{}, nil, time.Now())
	reply, err := s.Handle(context.Background(), classify.Result{Command: classify.CmdUnknown, Raw: "tugs"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "#tugas") {
		t.Fatalf("ожидали подсказку #tugas: %q", reply)
	}
}
