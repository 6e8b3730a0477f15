package extractor

import (
	"context"
	"time"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/llm"
)

// GeminiProvider — резервное текстовое звено цепочки поверх Gemini.
type GeminiProvider struct {
	client *llm.GeminiClient
	model  string
	loc    *time.Location
}

var _ domain.ExtractionProvider = (*GeminiProvider)(nil)

// NewGemini создаёт звено на указанной модели Gemini.
func NewGemini(client *llm.GeminiClient, model string, loc *time.Location) *GeminiProvider {
	return &GeminiProvider{client: client, model: model, loc: loc}
}

// Name реализует domain.ExtractionProvider.
func (p *GeminiProvider) Name() string { return "gemini/" + p.model }

// SupportsImage реализует domain.ExtractionProvider.
func (p *GeminiProvider) SupportsImage() bool { return false }

// Extract выполняет одну попытку извлечения.
func (p *GeminiProvider) Extract(ctx context.Context, in domain.ExtractionInput) (domain.ExtractionOutcome, error) {
	req := llm.GenerateContentRequest{
		Contents: []llm.GeminiContent{
			{Parts: []llm.GeminiPart{{Text: buildClassificationPrompt(in)}}},
		},
		GenerationConfig: &llm.GenerationConfig{
			Temperature:      0.2,
			MaxOutputTokens:  4096,
			ResponseMimeType: "application/json",
		},
	}
	resp, err := p.client.GenerateContent(ctx, p.model, req)
	if err != nil {
		return domain.ExtractionOutcome{}, asTransient(p.Name(), err)
	}
	text, ok := resp.Text()
	if !ok {
		return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: p.Name(), Reason: "пустой список candidates"}
	}
	return parseClassification(p.Name(), text, p.loc)
}
