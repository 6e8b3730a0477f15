package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.CourseDirectory = (*Postgres)(nil)
var _ domain.SenderHistory = (*Postgres)(nil)
var _ domain.AssignmentRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	err := p.pool.Ping(ctx)
	metrics.ObserveNetworkRequest("postgres", "ping", "pool", start, err)
	return err
}

// Resolve реализует domain.CourseDirectory.
func (p *Postgres) Resolve(ctx context.Context, nameOrAlias string) (domain.Course, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var course domain.Course
	err := p.pool.QueryRow(ctx, `
SELECT id, name, aliases
FROM courses
WHERE name ILIKE $1 OR $1 ILIKE ANY(aliases)
LIMIT 1
`, nameOrAlias).Scan(&course.ID, &course.Name, &course.Aliases)
	metrics.ObserveNetworkRequest("postgres", "course_resolve", "courses", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, false, nil
	}
	if err != nil {
		return domain.Course{}, false, err
	}
	return course, true, nil
}

// ListCourses возвращает все дисциплины.
func (p *Postgres) ListCourses(ctx context.Context) ([]domain.Course, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, name, aliases FROM courses ORDER BY name`)
	metrics.ObserveNetworkRequest("postgres", "course_list", "courses", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []domain.Course
	for rows.Next() {
		var course domain.Course
		if err := rows.Scan(&course.ID, &course.Name, &course.Aliases); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// TopSections реализует domain.SenderHistory.
func (p *Postgres) TopSections(ctx context.Context, senderID string, courseID uuid.UUID, limit int) ([]domain.SenderSectionStat, error) {
	if limit <= 0 {
		limit = 3
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT section_code, COUNT(*) AS cnt
FROM sender_history
WHERE sender_id = $1 AND course_id = $2 AND section_code <> ''
GROUP BY section_code
ORDER BY cnt DESC, section_code
LIMIT $3
`, senderID, courseID, limit)
	metrics.ObserveNetworkRequest("postgres", "sender_top_sections", "sender_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.SenderSectionStat
	for rows.Next() {
		var stat domain.SenderSectionStat
		if err := rows.Scan(&stat.SectionCode, &stat.Count); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// Record добавляет факт использования параллели. Записи только добавляются.
func (p *Postgres) Record(ctx context.Context, senderID string, courseID uuid.UUID, sectionCode string, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO sender_history (sender_id, course_id, section_code, used_at)
VALUES ($1, $2, $3, $4)
`, senderID, courseID, sectionCode, at)
	metrics.ObserveNetworkRequest("postgres", "sender_record", "sender_history", start, err)
	return err
}

const assignmentColumns = `
a.id, a.course_id, c.name, COALESCE(a.section_code, ''), a.title,
COALESCE(a.description, ''), a.deadline, COALESCE(a.sender_id, ''),
COALESCE(a.message_id, ''), a.completed, a.created_at, a.updated_at`

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var a domain.Assignment
	err := row.Scan(&a.ID, &a.CourseID, &a.CourseName, &a.SectionCode, &a.Title,
		&a.Description, &a.Deadline, &a.SenderID, &a.MessageID, &a.Completed,
		&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// FindOpenCandidates возвращает незавершённые задания курса; при известной
// параллели — только совпадающие с ней или без параллели.
func (p *Postgres) FindOpenCandidates(ctx context.Context, courseID uuid.UUID, sectionCode string) ([]domain.Assignment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a
JOIN courses c ON a.course_id = c.id
WHERE a.course_id = $1
  AND NOT a.completed
  AND ($2 = '' OR COALESCE(a.section_code, '') IN ('', $2))
ORDER BY a.created_at DESC
`, courseID, sectionCode)
	metrics.ObserveNetworkRequest("postgres", "assignment_candidates", "assignments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListOpen возвращает все незавершённые задания, ближайшие дедлайны первыми.
func (p *Postgres) ListOpen(ctx context.Context) ([]domain.Assignment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a
JOIN courses c ON a.course_id = c.id
WHERE NOT a.completed
ORDER BY a.deadline ASC NULLS LAST, a.created_at ASC
`)
	metrics.ObserveNetworkRequest("postgres", "assignment_list_open", "assignments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert вставляет черновик либо, при matchedID, обновляет существующее
// задание: ненулевые поля черновика перекрывают старые, заголовок сохраняется.
func (p *Postgres) Upsert(ctx context.Context, draft domain.AssignmentDraft, matchedID *uuid.UUID) (uuid.UUID, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if matchedID == nil {
		start := time.Now()
		var id uuid.UUID
		err := p.pool.QueryRow(ctx, `
INSERT INTO assignments (course_id, section_code, title, description, deadline, sender_id, message_id)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
RETURNING id
`, draft.CourseID, draft.SectionCode, draft.Title, draft.Description, draft.Deadline, draft.SenderID, draft.MessageID).Scan(&id)
		metrics.ObserveNetworkRequest("postgres", "assignment_insert", "assignments", start, err)
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE assignments SET
  section_code = COALESCE(NULLIF($2, ''), section_code),
  description  = COALESCE(NULLIF($3, ''), description),
  deadline     = COALESCE($4, deadline),
  updated_at   = now()
WHERE id = $1
`, *matchedID, draft.SectionCode, draft.Description, draft.Deadline)
	metrics.ObserveNetworkRequest("postgres", "assignment_merge", "assignments", start, err)
	if err != nil {
		return uuid.Nil, err
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, pgx.ErrNoRows
	}
	return *matchedID, nil
}

// ApplyUpdate применяет извлечённое обновление к существующему заданию.
func (p *Postgres) ApplyUpdate(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE assignments SET
  title       = COALESCE(NULLIF($2, ''), title),
  description = COALESCE(NULLIF($3, ''), description),
  deadline    = COALESCE($4, deadline),
  updated_at  = now()
WHERE id = $1
`, id, upd.NewTitle, upd.NewDescription, upd.NewDeadline)
	metrics.ObserveNetworkRequest("postgres", "assignment_update", "assignments", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LastCompleted возвращает задание, отмеченное выполненным последним.
// Оно — единственная цель #undo.
func (p *Postgres) LastCompleted(ctx context.Context) (domain.Assignment, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a
JOIN courses c ON a.course_id = c.id
WHERE a.completed
ORDER BY a.updated_at DESC
LIMIT 1
`)
	a, err := scanAssignment(row)
	metrics.ObserveNetworkRequest("postgres", "assignment_last_completed", "assignments", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, false, nil
	}
	if err != nil {
		return domain.Assignment{}, false, err
	}
	return a, true, nil
}

// MarkComplete помечает задание выполненным или снова открытым.
func (p *Postgres) MarkComplete(ctx context.Context, id uuid.UUID, done bool) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE assignments SET completed = $2, updated_at = now() WHERE id = $1
`, id, done)
	metrics.ObserveNetworkRequest("postgres", "assignment_complete", "assignments", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
