package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"tugas-bot/internal/adapters/bot"
	"tugas-bot/internal/adapters/extractor"
	"tugas-bot/internal/adapters/repo"
	"tugas-bot/internal/adapters/schedule"
	"tugas-bot/internal/adapters/waha"
	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/cache"
	"tugas-bot/internal/infra/config"
	"tugas-bot/internal/infra/db"
	"tugas-bot/internal/infra/llm"
	"tugas-bot/internal/infra/log"
	"tugas-bot/internal/infra/metrics"
	"tugas-bot/internal/usecase/commands"
	"tugas-bot/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("неизвестная таймзона")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	metrics.StartServer(rootCtx, logger, cfg.MetricsAddr)

	repoAdapter := repo.NewPostgres(pool)

	oracle, err := schedule.LoadFromFile(cfg.ScheduleFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ScheduleFile).Msg("не удалось загрузить расписание")
	}

	groqClient := llm.NewGroq(cfg.LLM.GroqAPIKey, "", cfg.LLM.AttemptTimeout)
	geminiClient := llm.NewGemini(cfg.LLM.GeminiAPIKey, "", cfg.LLM.AttemptTimeout)
	providers := []domain.ExtractionProvider{
		extractor.NewGroqVision(groqClient, cfg.LLM.VisionModel, loc),
		extractor.NewGroqReasoning(groqClient, cfg.LLM.ReasoningModel, loc),
		extractor.NewGroqText(groqClient, cfg.LLM.TextModel, loc),
		extractor.NewGemini(geminiClient, cfg.LLM.GeminiModel, loc),
	}
	verifiers := []domain.Verifier{
		extractor.NewGeminiVerifier(geminiClient, cfg.LLM.GeminiModel),
	}

	builder := ingest.NewContextBuilder(repoAdapter, repoAdapter, oracle, loc, logger)
	chain := ingest.NewOrchestrator(providers, cfg.LLM.AttemptTimeout, logger)
	resolver := ingest.NewResolver(repoAdapter, verifiers, cfg.Dedup.TokenOverlap, cfg.Dedup.MaxCandidates, logger)
	tracker := ingest.NewTracker(cfg.Clarify.TTL)
	ingestService := ingest.NewService(builder, chain, resolver, tracker, repoAdapter, repoAdapter, repoAdapter, loc, logger)
	commandService := commands.NewService(repoAdapter, repoAdapter, loc, logger)

	messenger := waha.NewClient(cfg.Waha.BaseURL, cfg.Waha.APIKey, cfg.Waha.Session)
	dedupe := cache.NewRedis(redisClient)
	h := bot.NewHandler(ingestService, commandService, messenger, dedupe, cfg.Channels(), logger)

	// Просроченные сессии уточнения вычищаются и фоновым обходом, не
	// только лениво при доступе.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if removed := tracker.Sweep(time.Now()); removed > 0 {
					logger.Info().Int("removed", removed).Msg("вычищены просроченные сессии уточнения")
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Register(r)

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

var _ domain.CourseDirectory = (*repo.Postgres)(nil)
var _ domain.SenderHistory = (*repo.Postgres)(nil)
var _ domain.AssignmentRepo = (*repo.Postgres)(nil)
var _ domain.ScheduleOracle = (*schedule.Oracle)(nil)
var _ domain.Messenger = (*waha.Client)(nil)
var _ domain.Cache = (*cache.RedisCache)(nil)
