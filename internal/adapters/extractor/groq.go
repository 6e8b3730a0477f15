package extractor

import (
	"context"
	"errors"
	"time"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/llm"
)

// GroqProvider — одно звено цепочки извлечения поверх Groq.
type GroqProvider struct {
	client      *llm.GroqClient
	model       string
	vision      bool
	temperature float64
	loc         *time.Location
}

var _ domain.ExtractionProvider = (*GroqProvider)(nil)

// NewGroqReasoning создаёт текстовое звено на reasoning-модели.
func NewGroqReasoning(client *llm.GroqClient, model string, loc *time.Location) *GroqProvider {
	return &GroqProvider{client: client, model: model, temperature: 0.6, loc: loc}
}

// NewGroqText создаёт дешёвое текстовое звено.
func NewGroqText(client *llm.GroqClient, model string, loc *time.Location) *GroqProvider {
	return &GroqProvider{client: client, model: model, temperature: 0.2, loc: loc}
}

// NewGroqVision создаёт мультимодальное звено.
func NewGroqVision(client *llm.GroqClient, model string, loc *time.Location) *GroqProvider {
	return &GroqProvider{client: client, model: model, vision: true, temperature: 0.2, loc: loc}
}

// Name реализует domain.ExtractionProvider.
func (p *GroqProvider) Name() string { return "groq/" + p.model }

// SupportsImage реализует domain.ExtractionProvider.
func (p *GroqProvider) SupportsImage() bool { return p.vision }

// Extract выполняет одну попытку извлечения.
func (p *GroqProvider) Extract(ctx context.Context, in domain.ExtractionInput) (domain.ExtractionOutcome, error) {
	prompt := buildClassificationPrompt(in)

	var content any = prompt
	if p.vision && in.ImageBase64 != "" {
		content = llm.TextParts(prompt, in.ImageBase64)
	}
	req := llm.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   4096,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleUser, Content: content},
		},
		ResponseFormat: &llm.ChatCompletionResponseFormat{Type: llm.ResponseFormatTypeJSONObject},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ExtractionOutcome{}, asTransient(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return domain.ExtractionOutcome{}, &domain.SchemaError{Provider: p.Name(), Reason: "пустой список choices"}
	}
	return parseClassification(p.Name(), resp.Choices[0].Message.Content, p.loc)
}

// asTransient переводит любой сбой вызова в TransientError: таймауты, 5xx
// и rate-limit для оркестратора равнозначны — цепочка идёт дальше.
func asTransient(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.TransientError{Provider: provider, Err: err}
}
