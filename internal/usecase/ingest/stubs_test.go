package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"tugas-bot/internal/domain"
)

type stubDirectory struct {
	courses []domain.Course
}

func (s *stubDirectory) Resolve(_ context.Context, nameOrAlias string) (domain.Course, bool, error) {
	for _, c := range s.courses {
		if strings.EqualFold(c.Name, nameOrAlias) {
			return c, true, nil
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, nameOrAlias) {
				return c, true, nil
			}
		}
	}
	return domain.Course{}, false, nil
}

func (s *stubDirectory) ListCourses(_ context.Context) ([]domain.Course, error) {
	return s.courses, nil
}

type recordedUse struct {
	SenderID    string
	CourseID    uuid.UUID
	SectionCode string
}

type stubHistory struct {
	stats    map[string][]domain.SenderSectionStat
	recorded []recordedUse
}

func historyKey(senderID string, courseID uuid.UUID) string {
	return senderID + "|" + courseID.String()
}

func (s *stubHistory) TopSections(_ context.Context, senderID string, courseID uuid.UUID, limit int) ([]domain.SenderSectionStat, error) {
	stats := s.stats[historyKey(senderID, courseID)]
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (s *stubHistory) Record(_ context.Context, senderID string, courseID uuid.UUID, sectionCode string, _ time.Time) error {
	s.recorded = append(s.recorded, recordedUse{SenderID: senderID, CourseID: courseID, SectionCode: sectionCode})
	return nil
}

type stubOracle struct {
	meeting time.Time
	ok      bool
}

func (s *stubOracle) NextMeeting(domain.Course, string, time.Time) (time.Time, bool) {
	return s.meeting, s.ok
}

type stubRepo struct {
	open     []domain.Assignment
	inserted []domain.AssignmentDraft
	merged   []uuid.UUID
	updates  map[uuid.UUID]domain.UpdateRequest
}

func (r *stubRepo) FindOpenCandidates(_ context.Context, courseID uuid.UUID, sectionCode string) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for _, a := range r.open {
		if a.CourseID != courseID || a.Completed {
			continue
		}
		if sectionCode != "" && a.SectionCode != "" && a.SectionCode != sectionCode {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *stubRepo) ListOpen(_ context.Context) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for _, a := range r.open {
		if !a.Completed {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubRepo) Upsert(_ context.Context, draft domain.AssignmentDraft, matchedID *uuid.UUID) (uuid.UUID, error) {
	if matchedID != nil {
		r.merged = append(r.merged, *matchedID)
		return *matchedID, nil
	}
	r.inserted = append(r.inserted, draft)
	return uuid.New(), nil
}

func (r *stubRepo) ApplyUpdate(_ context.Context, id uuid.UUID, upd domain.UpdateRequest) error {
	if r.updates == nil {
		r.updates = make(map[uuid.UUID]domain.UpdateRequest)
	}
	r.updates[id] = upd
	return nil
}

func (r *stubRepo) MarkComplete(_ context.Context, id uuid.UUID, done bool) error {
	for i := range r.open {
		if r.open[i].ID == id {
			r.open[i].Completed = done
		}
	}
	return nil
}

func (r *stubRepo) LastCompleted(_ context.Context) (domain.Assignment, bool, error) {
	for i := len(r.open) - 1; i >= 0; i-- {
		if r.open[i].Completed {
			return r.open[i], true, nil
		}
	}
	return domain.Assignment{}, false, nil
}

type stubProvider struct {
	name    string
	vision  bool
	outcome domain.ExtractionOutcome
	err     error
	calls   int
}

func (p *stubProvider) Name() string        { return p.name }
func (p *stubProvider) SupportsImage() bool { return p.vision }

func (p *stubProvider) Extract(_ context.Context, _ domain.ExtractionInput) (domain.ExtractionOutcome, error) {
	p.calls++
	if p.err != nil {
		return domain.ExtractionOutcome{}, p.err
	}
	return p.outcome, nil
}

type stubVerifier struct {
	name   string
	result domain.MatchResult
	err    error
	calls  int
}

func (v *stubVerifier) Name() string { return v.name }

func (v *stubVerifier) Verify(_ context.Context, _, _, _ string, _ []string, _ []domain.Assignment) (domain.MatchResult, error) {
	v.calls++
	if v.err != nil {
		return domain.MatchResult{}, v.err
	}
	return v.result, nil
}
