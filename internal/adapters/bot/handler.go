package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tugas-bot/internal/adapters/waha"
	"tugas-bot/internal/domain"
	"tugas-bot/internal/usecase/classify"
)

// Ingestor — конвейер приёма кандидатных сообщений.
type Ingestor interface {
	Ingest(ctx context.Context, msg domain.InboundMessage) (domain.IngestResult, error)
}

// Commander выполняет детерминированные #-команды.
type Commander interface {
	Handle(ctx context.Context, res classify.Result) (string, error)
}

// Handler принимает вебхуки WAHA и разводит сообщения: команды — в
// Commander, кандидатные тексты из разрешённых чатов — в Ingestor.
type Handler struct {
	ingestor   Ingestor
	commander  Commander
	messenger  domain.Messenger
	dedupe     domain.Cache
	allowed    map[string]struct{}
	logger     zerolog.Logger
	processTTL time.Duration
}

// NewHandler создаёт обработчик вебхука. channels — allow-list чатов,
// из которых принимаются кандидатные сообщения.
func NewHandler(ingestor Ingestor, commander Commander, messenger domain.Messenger, dedupe domain.Cache, channels []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		allowed[ch] = struct{}{}
	}
	return &Handler{
		ingestor:   ingestor,
		commander:  commander,
		messenger:  messenger,
		dedupe:     dedupe,
		allowed:    allowed,
		logger:     logger,
		processTTL: 24 * time.Hour,
	}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook/waha", h.handleWebhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// handleWebhook отвечает транспорту сразу, обработка идёт в фоне:
// WAHA повторяет доставку при медленном ответе.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload waha.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("bot: не удалось разобрать вебхук")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if payload.Event != "message" && payload.Event != "message.any" {
		return
	}
	if payload.Payload.FromMe || payload.Payload.ID == "" {
		return
	}

	msg := inboundFromPayload(payload.Payload)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		err := h.dedupe.Once(ctx, "processed:"+msg.ID, h.processTTL, func() error {
			return h.process(ctx, msg)
		})
		if err != nil {
			h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("bot: обработка сообщения не удалась")
		}
	}()
}

func inboundFromPayload(p waha.MessagePayload) domain.InboundMessage {
	chatID := p.ChatID
	if chatID == "" {
		chatID = p.From
	}
	return domain.InboundMessage{
		ID:          p.ID,
		ChatID:      chatID,
		SenderID:    p.From,
		SenderName:  p.SenderName,
		Text:        p.Body,
		ImageBase64: p.MediaBase64,
		ReceivedAt:  time.Unix(p.Timestamp, 0),
	}
}

func (h *Handler) process(ctx context.Context, msg domain.InboundMessage) error {
	res := classify.Classify(msg.Text, msg.ImageBase64 != "")
	switch res.Kind {
	case classify.KindIgnorable:
		return nil

	case classify.KindCommand:
		reply, err := h.commander.Handle(ctx, res)
		if err != nil {
			h.logger.Error().Err(err).Str("command", string(res.Command)).Msg("bot: команда не выполнилась")
			reply = "😞 Terjadi kesalahan. Coba lagi nanti ya."
		}
		return h.messenger.SendText(ctx, msg.ChatID, reply)

	default:
		if _, ok := h.allowed[msg.ChatID]; !ok {
			return nil
		}
		result, err := h.ingestor.Ingest(ctx, msg)
		if err != nil {
			if errors.Is(err, domain.ErrTerminalExtraction) {
				return h.messenger.SendText(ctx, msg.ChatID, "🙏 Maaf, aku tidak bisa memahami pesan itu. Coba tulis ulang dengan lebih jelas ya.")
			}
			return err
		}
		reply := composeReply(result)
		if reply == "" {
			return nil
		}
		return h.messenger.SendText(ctx, msg.ChatID, reply)
	}
}

// composeReply переводит итог конвейера в ответ чата. Unrecognized
// остаётся без ответа: бот не комментирует каждую реплику группы.
func composeReply(result domain.IngestResult) string {
	switch {
	case result.ClarificationRequested:
		return clarificationReply(result.MissingFields)
	case result.UpdateUnmatched:
		return "🤔 Aku tidak menemukan tugas yang cocok untuk diperbarui. Cek daftar dengan *#tugas*."
	case len(result.Inserted) > 0 && len(result.UpdatedIDs) > 0:
		return fmt.Sprintf("✅ %s\n🔄 %d tugas lama diperbarui.", insertedSummary(result.Inserted), len(result.UpdatedIDs))
	case len(result.Inserted) > 0:
		return "✅ " + insertedSummary(result.Inserted)
	case len(result.UpdatedIDs) > 0:
		return fmt.Sprintf("🔄 %d tugas diperbarui.", len(result.UpdatedIDs))
	default:
		return ""
	}
}

func insertedSummary(drafts []domain.AssignmentDraft) string {
	if len(drafts) == 1 {
		d := drafts[0]
		line := fmt.Sprintf("Tugas dicatat: *%s* (%s)", d.Title, d.CourseName)
		if d.Deadline != nil {
			line += ", deadline " + d.Deadline.Format("02/01 15:04")
		}
		return line
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tugas dicatat:\n", len(drafts))
	for i, d := range drafts {
		fmt.Fprintf(&b, "%d. *%s* (%s)", i+1, d.Title, d.CourseName)
		if d.Deadline != nil {
			fmt.Fprintf(&b, " — %s", d.Deadline.Format("02/01 15:04"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func clarificationReply(missing []string) string {
	var asks []string
	for _, field := range missing {
		switch field {
		case "course":
			asks = append(asks, "nama matkul")
		case "title":
			asks = append(asks, "judul tugas")
		default:
			asks = append(asks, field)
		}
	}
	return fmt.Sprintf("📝 Tugas dicatat sebagian. Balas dengan %s ya (contoh: `Matkul: Pemrograman`).", strings.Join(asks, " dan "))
}
