package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tugas-bot/internal/infra/metrics"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient выполняет generateContent запросы к Gemini.
type GeminiClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewGemini создаёт клиента Gemini.
func NewGemini(apiKey, baseURL string, timeout time.Duration) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &GeminiClient{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// GenerateContentRequest описывает тело запроса.
type GenerateContentRequest struct {
	Contents         []GeminiContent   `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent содержит части запроса или ответа.
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart — одна текстовая часть.
type GeminiPart struct {
	Text string `json:"text"`
}

// GenerationConfig задаёт параметры генерации.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// GenerateContentResponse описывает ответ модели.
type GenerateContentResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

// GeminiCandidate содержит контент кандидата.
type GeminiCandidate struct {
	Content GeminiContent `json:"content"`
}

// Text возвращает первый текстовый фрагмент ответа.
func (r GenerateContentResponse) Text() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return r.Candidates[0].Content.Parts[0].Text, true
}

// GenerateContent вызывает /models/{model}:generateContent.
func (c *GeminiClient) GenerateContent(ctx context.Context, model string, req GenerateContentRequest) (GenerateContentResponse, error) {
	if c.apiKey == "" {
		return GenerateContentResponse{}, fmt.Errorf("gemini: api key is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("gemini: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("gemini", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("gemini: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("gemini", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		metrics.ObserveNetworkRequest("gemini", "generate_content", model, start, statusErr)
		return GenerateContentResponse{}, fmt.Errorf("gemini: %w", statusErr)
	}
	var parsed GenerateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("gemini", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("gemini", "generate_content", model, start, nil)
	metrics.ObserveLLMGeneration(model, time.Since(start), 0, 0, 0)
	return parsed, nil
}
