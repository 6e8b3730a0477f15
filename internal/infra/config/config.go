package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Jakarta"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Waha struct {
		BaseURL string `envconfig:"WAHA_BASE_URL" default:"http://localhost:3001"`
		APIKey  string `envconfig:"WAHA_API_KEY"`
		Session string `envconfig:"WAHA_SESSION" default:"default"`
	} `envconfig:""`

	// Через запятую: chat id групп, из которых принимаются кандидатные сообщения.
	AcademicChannels string `envconfig:"ACADEMIC_CHANNELS"`

	// JSON с недельным расписанием пар.
	ScheduleFile string `envconfig:"SCHEDULE_FILE" default:"schedule.json"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	LLM struct {
		GroqAPIKey     string        `envconfig:"GROQ_API_KEY"`
		GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
		AttemptTimeout time.Duration `envconfig:"LLM_ATTEMPT_TIMEOUT" default:"25s"`

		ReasoningModel string `envconfig:"GROQ_REASONING_MODEL" default:"deepseek-r1-distill-llama-70b"`
		TextModel      string `envconfig:"GROQ_TEXT_MODEL" default:"llama-3.3-70b-versatile"`
		VisionModel    string `envconfig:"GROQ_VISION_MODEL" default:"meta-llama/llama-4-scout-17b-16e-instruct"`
		GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	} `envconfig:""`

	Dedup struct {
		TokenOverlap  float64 `envconfig:"DEDUP_TOKEN_OVERLAP" default:"0.2"`
		MaxCandidates int     `envconfig:"DEDUP_MAX_CANDIDATES" default:"3"`
	} `envconfig:""`

	Clarify struct {
		TTL time.Duration `envconfig:"CLARIFY_TTL" default:"30m"`
	} `envconfig:""`

	Reminder struct {
		Hours string `envconfig:"REMINDER_HOURS" default:"07:00,17:00"`
	} `envconfig:""`

	Queues struct {
		Reminder string `envconfig:"REMINDER_QUEUE_KEY" default:"reminder_jobs"`
		AMQPURL  string `envconfig:"AMQP_URL"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает .env и конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Channels возвращает распарсенный список академических чатов.
func (c AppConfig) Channels() []string {
	var out []string
	for _, raw := range strings.Split(c.AcademicChannels, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ReminderHours возвращает часы рассылки в формате HH:MM.
func (c AppConfig) ReminderHours() []string {
	var out []string
	for _, raw := range strings.Split(c.Reminder.Hours, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
