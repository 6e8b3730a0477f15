package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tugas-bot/internal/adapters/repo"
	"tugas-bot/internal/adapters/waha"
	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/config"
	"tugas-bot/internal/infra/db"
	"tugas-bot/internal/infra/log"
	"tugas-bot/internal/infra/queue"
	"tugas-bot/internal/usecase/reminder"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("reminder-worker: неизвестная таймзона")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("reminder-worker: нет подключения к БД")
	}
	defer pool.Close()

	var q domain.ReminderQueue
	if cfg.Queues.AMQPURL != "" {
		rabbit, err := queue.NewRabbitReminderQueue(cfg.Queues.AMQPURL, cfg.Queues.Reminder)
		if err != nil {
			logger.Fatal().Err(err).Msg("reminder-worker: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		q = rabbit
	} else {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		q = queue.NewRedisReminderQueue(redisClient, cfg.Queues.Reminder)
	}

	messenger := waha.NewClient(cfg.Waha.BaseURL, cfg.Waha.APIKey, cfg.Waha.Session)
	service := reminder.NewService(repo.NewPostgres(pool), q, messenger, cfg.Channels(), loc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("reminder-worker: остановка")
		cancel()
	}()

	logger.Info().Msg("reminder-worker: запущен")
	if err := service.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("reminder-worker: цикл обработки завершился с ошибкой")
	}
}
