package ingest

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Resolver решает «новая запись или обновление существующей» для каждого
// черновика класса New. Слияние происходит только при high-уверенности
// верификации: на сомнительных уликах система никогда не сливает.
type Resolver struct {
	repo          domain.AssignmentRepo
	verifiers     []domain.Verifier
	tokenOverlap  float64
	maxCandidates int
	logger        zerolog.Logger
}

// NewResolver создаёт резолвер дубликатов. tokenOverlap — минимальная доля
// пересечения токенов заголовков, maxCandidates — потолок списка кандидатов.
func NewResolver(repo domain.AssignmentRepo, verifiers []domain.Verifier, tokenOverlap float64, maxCandidates int, logger zerolog.Logger) *Resolver {
	if tokenOverlap <= 0 {
		tokenOverlap = 0.2
	}
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &Resolver{repo: repo, verifiers: verifiers, tokenOverlap: tokenOverlap, maxCandidates: maxCandidates, logger: logger}
}

// Resolve возвращает идентификатор задания, с которым черновик следует
// слить, либо nil — вставка новой записи.
func (r *Resolver) Resolve(ctx context.Context, draft domain.AssignmentDraft) (*uuid.UUID, error) {
	open, err := r.repo.FindOpenCandidates(ctx, draft.CourseID, draft.SectionCode)
	if err != nil {
		return nil, err
	}
	candidates := r.prefilter(draft.Title, open)
	if len(candidates) == 0 {
		return nil, nil
	}

	match, err := r.verify(ctx, draft.Title, draft.Description, "", nil, candidates)
	if err != nil {
		// Верификация недоступна — вставляем новую запись, не сливаем вслепую.
		r.logger.Warn().Err(err).Str("title", draft.Title).Msg("ingest: верификация дубликата не удалась, вставка новой записи")
		return nil, nil
	}
	if match.Confidence != domain.ConfidenceHigh || match.MatchIndex == nil {
		return nil, nil
	}
	id := candidates[*match.MatchIndex].ID
	metrics.DuplicateMergesTotal.Inc()
	return &id, nil
}

// Match прогоняет запрос-обновление по списку кандидатов.
func (r *Resolver) Match(ctx context.Context, upd domain.UpdateRequest, candidates []domain.Assignment) (domain.MatchResult, error) {
	if len(candidates) == 0 {
		return domain.MatchResult{Confidence: domain.ConfidenceLow}, nil
	}
	title := strings.Join(upd.Keywords, " ")
	return r.verify(ctx, title, "", upd.Changes, upd.Keywords, candidates)
}

// verify применяет ту же дисциплину перебора, что и цепочка извлечения:
// последнее звено авторитетно.
func (r *Resolver) verify(ctx context.Context, title, description, changes string, keywords []string, candidates []domain.Assignment) (domain.MatchResult, error) {
	var lastErr error
	for _, verifier := range r.verifiers {
		match, err := verifier.Verify(ctx, title, description, changes, keywords, candidates)
		if err == nil {
			return match, nil
		}
		if !domain.AdvancesChain(err) {
			return domain.MatchResult{}, err
		}
		r.logger.Warn().Err(err).Str("verifier", verifier.Name()).Msg("ingest: верификатор не справился")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domain.ErrTerminalExtraction
	}
	return domain.MatchResult{}, lastErr
}

var leadingPatternRe = regexp.MustCompile(`^([a-z]+)\s*0*(\d+)`)

type scoredCandidate struct {
	assignment domain.Assignment
	score      float64
}

// prefilter оставляет кандидатов с достаточным пересечением токенов
// заголовка либо совпадающим ведущим шаблоном «тип задания + номер».
func (r *Resolver) prefilter(title string, open []domain.Assignment) []domain.Assignment {
	draftTokens := tokenize(title)
	draftLead := leadingPattern(title)

	var scored []scoredCandidate
	for _, a := range open {
		overlap := jaccard(draftTokens, tokenize(a.Title))
		keep := overlap >= r.tokenOverlap
		if !keep && draftLead != "" && draftLead == leadingPattern(a.Title) {
			keep = true
		}
		if keep {
			scored = append(scored, scoredCandidate{assignment: a, score: overlap})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > r.maxCandidates {
		scored = scored[:r.maxCandidates]
	}
	out := make([]domain.Assignment, 0, len(scored))
	for _, sc := range scored {
		out = append(out, sc.assignment)
	}
	return out
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// leadingPattern нормализует ведущую пару «слово + число»: "LKP 07" и
// "lkp7" дают одинаковый ключ.
func leadingPattern(title string) string {
	m := leadingPatternRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(title)))
	if m == nil {
		return ""
	}
	return m[1] + " " + m[2]
}
