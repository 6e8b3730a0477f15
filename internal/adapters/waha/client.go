package waha

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

// Client отправляет сообщения через HTTP API WAHA.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	session string
}

// NewClient создаёт клиента WAHA.
func NewClient(baseURL, apiKey, session string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if session == "" {
		session = "default"
	}
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		session: session,
	}
}

type sendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SendText отправляет текст в чат.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	payload := sendTextRequest{ChatID: chatID, Text: text, Session: c.session}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("waha: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/api/sendText"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("waha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("waha", "send_text", chatID, start, err)
		return fmt.Errorf("waha: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("waha: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		metrics.ObserveNetworkRequest("waha", "send_text", chatID, start, err)
		return err
	}
	metrics.ObserveNetworkRequest("waha", "send_text", chatID, start, nil)
	return nil
}

// WebhookPayload — событие вебхука WAHA.
type WebhookPayload struct {
	Event   string         `json:"event"`
	Session string         `json:"session"`
	Payload MessagePayload `json:"payload"`
}

// MessagePayload — тело входящего сообщения.
type MessagePayload struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	From        string `json:"from"`
	FromMe      bool   `json:"fromMe"`
	ChatID      string `json:"chatId"`
	SenderName  string `json:"notifyName"`
	MediaBase64 string `json:"mediaBase64"`
	Timestamp   int64  `json:"timestamp"`
}
