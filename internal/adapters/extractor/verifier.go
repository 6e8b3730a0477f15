package extractor

import (
	"context"
	"time"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/llm"
)

// GeminiVerifier выполняет верификацию совпадения черновика с кандидатами.
// Верификация всегда текстовая, изображение сюда не попадает.
type GeminiVerifier struct {
	client *llm.GeminiClient
	model  string
	now    func() time.Time
}

var _ domain.Verifier = (*GeminiVerifier)(nil)

// NewGeminiVerifier создаёт верификатор на указанной модели.
func NewGeminiVerifier(client *llm.GeminiClient, model string) *GeminiVerifier {
	return &GeminiVerifier{client: client, model: model, now: time.Now}
}

// Name реализует domain.Verifier.
func (v *GeminiVerifier) Name() string { return "gemini/" + v.model }

// Verify реализует domain.Verifier.
func (v *GeminiVerifier) Verify(ctx context.Context, title, description, changes string, keywords []string, candidates []domain.Assignment) (domain.MatchResult, error) {
	prompt := buildMatchingPrompt(title, description, changes, keywords, candidates, v.now())
	req := llm.GenerateContentRequest{
		Contents: []llm.GeminiContent{
			{Parts: []llm.GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: &llm.GenerationConfig{
			Temperature:      0.1,
			MaxOutputTokens:  1024,
			ResponseMimeType: "application/json",
		},
	}
	resp, err := v.client.GenerateContent(ctx, v.model, req)
	if err != nil {
		return domain.MatchResult{}, asTransient(v.Name(), err)
	}
	text, ok := resp.Text()
	if !ok {
		return domain.MatchResult{}, &domain.SchemaError{Provider: v.Name(), Reason: "пустой список candidates"}
	}
	return parseMatch(v.Name(), text, len(candidates))
}
