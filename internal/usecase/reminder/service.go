package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Service составляет и рассылает дайджест открытых заданий по расписанию.
type Service struct {
	repo      domain.AssignmentRepo
	queue     domain.ReminderQueue
	messenger domain.Messenger
	channels  []string
	loc       *time.Location
	logger    zerolog.Logger
}

// NewService создаёт сервис напоминаний.
func NewService(repo domain.AssignmentRepo, queue domain.ReminderQueue, messenger domain.Messenger, channels []string, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{repo: repo, queue: queue, messenger: messenger, channels: channels, loc: loc, logger: logger}
}

// Greeting подбирает приветствие под час рассылки.
func Greeting(hour int) string {
	switch {
	case hour < 11:
		return "Selamat pagi"
	case hour < 15:
		return "Selamat siang"
	case hour < 18:
		return "Selamat sore"
	default:
		return "Selamat malam"
	}
}

// Run обрабатывает задачи из очереди до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := s.deliver(ctx, job); err != nil {
			s.logger.Error().Err(err).Msg("reminder: доставка не удалась")
		}
	}
}

func (s *Service) deliver(ctx context.Context, job domain.ReminderJob) error {
	text, err := s.Compose(ctx, job)
	if err != nil {
		return err
	}
	if text == "" {
		s.logger.Info().Msg("reminder: открытых заданий нет, рассылка пропущена")
		return nil
	}
	var firstErr error
	for _, channel := range s.channels {
		if err := s.messenger.SendText(ctx, channel, text); err != nil {
			metrics.ReminderSendErrors.Inc()
			s.logger.Error().Err(err).Str("channel", channel).Msg("reminder: отправка в канал не удалась")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Compose собирает текст дайджеста. Пустая строка — напоминать не о чем.
func (s *Service) Compose(ctx context.Context, job domain.ReminderJob) (string, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		return "", nil
	}

	now := job.ScheduledAt.In(s.loc)
	var b strings.Builder
	fmt.Fprintf(&b, "%s! ⏰ Pengingat tugas:\n\n", job.Greeting)
	for i, a := range open {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, a.CourseName, a.Title)
		if a.SectionCode != "" {
			fmt.Fprintf(&b, " (%s)", strings.ToUpper(a.SectionCode))
		}
		b.WriteString(" — ")
		b.WriteString(describeDeadline(a.Deadline, now, s.loc))
		b.WriteString("\n")
	}
	b.WriteString("\nSemangat! 💪 Ketik *#tugas* untuk rincian.")
	return b.String(), nil
}

func describeDeadline(deadline *time.Time, now time.Time, loc *time.Location) string {
	if deadline == nil {
		return "tanpa deadline"
	}
	d := deadline.In(loc)
	days := daysBetween(now, d)
	stamp := d.Format("02/01 15:04")
	switch {
	case days < 0:
		return fmt.Sprintf("⚠️ lewat deadline (%s)", stamp)
	case days == 0:
		return fmt.Sprintf("🔥 HARI INI %s", d.Format("15:04"))
	case days == 1:
		return fmt.Sprintf("besok %s", d.Format("15:04"))
	default:
		return fmt.Sprintf("%d hari lagi (%s)", days, stamp)
	}
}

func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toDay.Sub(fromDay) / (24 * time.Hour))
}
