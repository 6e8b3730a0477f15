package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/config"
	"tugas-bot/internal/infra/queue"
	"tugas-bot/internal/usecase/reminder"
)

// Планировщик раз в минуту сверяет локальное время со списком часов
// рассылки и ставит задачу в очередь напоминаний.
func main() {
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неизвестная таймзона")
	}

	var q domain.ReminderQueue
	if cfg.Queues.AMQPURL != "" {
		rabbit, err := queue.NewRabbitReminderQueue(cfg.Queues.AMQPURL, cfg.Queues.Reminder)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		q = rabbit
	} else {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		q = queue.NewRedisReminderQueue(redisClient, cfg.Queues.Reminder)
	}

	hours := cfg.ReminderHours()
	log.Info().Strs("hours", hours).Msg("scheduler: запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	lastFired := ""
	for {
		select {
		case <-stop:
			log.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
			now := time.Now().In(loc)
			stamp := now.Format("15:04")
			if !contains(hours, stamp) {
				continue
			}
			// Одна отметка в минуту: тик дважды попадает в ту же минуту.
			key := now.Format("2006-01-02 15:04")
			if key == lastFired {
				continue
			}
			lastFired = key

			job := domain.ReminderJob{Greeting: reminder.Greeting(now.Hour()), ScheduledAt: now}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := q.Enqueue(ctx, job)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("scheduler: не удалось поставить задачу")
				continue
			}
			log.Info().Str("at", fmt.Sprint(now)).Msg("scheduler: задача напоминания поставлена")
		}
	}
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
