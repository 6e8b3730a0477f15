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

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient выполняет Chat Completions запросы к Groq.
type GroqClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewGroq создаёт клиента Groq.
func NewGroq(apiKey, baseURL string, timeout time.Duration) *GroqClient {
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &GroqClient{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// ChatCompletionRequest описывает тело запроса.
type ChatCompletionRequest struct {
	Model          string                        `json:"model"`
	Messages       []ChatMessage                 `json:"messages"`
	Temperature    float64                       `json:"temperature,omitempty"`
	MaxTokens      int                           `json:"max_tokens,omitempty"`
	ResponseFormat *ChatCompletionResponseFormat `json:"response_format,omitempty"`
}

// ChatMessage представляет сообщение в диалоге. Content — строка либо
// список мультимодальных частей для vision-моделей.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
)

// ContentPart — часть мультимодального сообщения.
type ContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *ImageURLValue `json:"image_url,omitempty"`
}

// ImageURLValue содержит data-URL изображения.
type ImageURLValue struct {
	URL string `json:"url"`
}

// TextParts собирает мультимодальный контент из текста и base64-картинки.
func TextParts(text, imageBase64 string) []ContentPart {
	parts := []ContentPart{{Type: "text", Text: text}}
	if imageBase64 != "" {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURLValue{URL: "data:image/jpeg;base64," + imageBase64},
		})
	}
	return parts
}

// ChatCompletionResponseFormat задаёт формат ответа.
type ChatCompletionResponseFormat struct {
	Type string `json:"type"`
}

const (
	// ResponseFormatTypeJSONObject просит вернуть объект JSON.
	ResponseFormatTypeJSONObject = "json_object"
)

// ChatCompletionResponse описывает ответ модели.
type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ChatCompletionChoice содержит сообщение модели.
type ChatCompletionChoice struct {
	Message ChatResponseMessage `json:"message"`
}

// ChatResponseMessage — ответное сообщение, контент всегда строка.
type ChatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionUsage описывает статистику использования токенов.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StatusError возвращается при неуспешном HTTP-статусе.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// CreateChatCompletion вызывает /chat/completions.
func (c *GroqClient) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return ChatCompletionResponse{}, fmt.Errorf("groq: api key is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("groq: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("groq: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("groq", "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("groq: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("groq", "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("groq: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		message := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		statusErr := &StatusError{Code: resp.StatusCode, Message: message}
		metrics.ObserveNetworkRequest("groq", "chat_completions", req.Model, start, statusErr)
		return ChatCompletionResponse{}, fmt.Errorf("groq: %w", statusErr)
	}
	var completion ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		metrics.ObserveNetworkRequest("groq", "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("groq: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("groq", "chat_completions", req.Model, start, nil)
	if completion.Usage != nil {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens)
	}
	return completion, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
