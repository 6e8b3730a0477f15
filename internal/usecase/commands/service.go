package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/usecase/classify"
)

// HealthPinger проверяет доступность хранилища для #ping.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// Service отвечает на детерминированные #-команды. Нумерация в #done и
// #detail совпадает с порядком последнего списка: ближайшие дедлайны первыми.
type Service struct {
	repo   domain.AssignmentRepo
	health HealthPinger
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

// NewService создаёт обработчик команд.
func NewService(repo domain.AssignmentRepo, health HealthPinger, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{repo: repo, health: health, loc: loc, logger: logger, now: time.Now}
}

// Handle выполняет команду и возвращает текст ответа.
func (s *Service) Handle(ctx context.Context, res classify.Result) (string, error) {
	switch res.Command {
	case classify.CmdPing:
		return s.ping(ctx), nil
	case classify.CmdList:
		return s.list(ctx)
	case classify.CmdToday:
		return s.today(ctx)
	case classify.CmdDone:
		return s.done(ctx, res.Ordinal)
	case classify.CmdUndo:
		return s.undo(ctx)
	case classify.CmdExpand:
		return s.expand(ctx, res.Ordinal)
	case classify.CmdHelp:
		return helpText, nil
	default:
		return unknownReply(res.Raw), nil
	}
}

const helpText = `🤖 *Perintah yang tersedia:*
#tugas — daftar tugas aktif
#today — tugas dengan deadline hari ini
#N atau #detail N — rincian tugas nomor N
#done N — tandai tugas nomor N selesai
#undo — batalkan #done terakhir
#ping — cek status bot
#help — pesan ini`

func unknownReply(raw string) string {
	reply := "❓ Perintah tidak dikenali."
	if hint := classify.Suggest(raw); hint != "" {
		reply += fmt.Sprintf(" Mungkin maksudmu *#%s*?", hint)
	}
	return reply + "\nKetik *#help* untuk daftar perintah."
}

func (s *Service) ping(ctx context.Context) string {
	if err := s.health.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("commands: база недоступна")
		return "🏓 Pong! Bot aktif, tapi database bermasalah 😞"
	}
	return "🏓 Pong! Bot aktif dan database OK ✅"
}

func (s *Service) list(ctx context.Context) (string, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		return "🎉 Tidak ada tugas aktif. Santai dulu!", nil
	}
	var b strings.Builder
	b.WriteString("📋 *Daftar Tugas Aktif:*\n")
	for i, a := range open {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.formatLine(a))
	}
	b.WriteString("\nKetik *#N* untuk rincian, *#done N* untuk menandai selesai.")
	return b.String(), nil
}

func (s *Service) today(ctx context.Context) (string, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return "", err
	}
	now := s.now().In(s.loc)
	var due []domain.Assignment
	for _, a := range open {
		if a.Deadline == nil {
			continue
		}
		d := a.Deadline.In(s.loc)
		if d.Year() == now.Year() && d.YearDay() == now.YearDay() {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		return "✨ Tidak ada deadline hari ini.", nil
	}
	var b strings.Builder
	b.WriteString("⏰ *Deadline hari ini:*\n")
	for i, a := range due {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.formatLine(a))
	}
	return b.String(), nil
}

func (s *Service) done(ctx context.Context, ordinal int) (string, error) {
	target, reply, err := s.nth(ctx, ordinal)
	if err != nil || reply != "" {
		return reply, err
	}
	if err := s.repo.MarkComplete(ctx, target.ID, true); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Tugas *%s* (%s) ditandai selesai!\n_Salah tandai? Ketik *#undo*._", target.Title, target.CourseName), nil
}

// undo возвращает в работу последнее выполненное задание.
func (s *Service) undo(ctx context.Context) (string, error) {
	target, found, err := s.repo.LastCompleted(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "❌ Tidak ada tugas yang baru saja selesai.\n_#undo hanya membatalkan #done terakhir._", nil
	}
	if err := s.repo.MarkComplete(ctx, target.ID, false); err != nil {
		return "", err
	}
	return fmt.Sprintf("↩️ Oke! Tugas *%s* (%s) ditandai belum selesai.", target.Title, target.CourseName), nil
}

func (s *Service) expand(ctx context.Context, ordinal int) (string, error) {
	target, reply, err := s.nth(ctx, ordinal)
	if err != nil || reply != "" {
		return reply, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📌 *%s*\n", target.Title)
	fmt.Fprintf(&b, "Matkul: %s\n", target.CourseName)
	if target.SectionCode != "" {
		fmt.Fprintf(&b, "Paralel: %s\n", strings.ToUpper(target.SectionCode))
	}
	fmt.Fprintf(&b, "Deadline: %s\n", s.formatDeadline(target.Deadline))
	if target.Description != "" {
		fmt.Fprintf(&b, "\n%s", target.Description)
	}
	return b.String(), nil
}

// nth возвращает задание по номеру из списка #tugas. Непустой reply
// означает понятный пользователю отказ, а не ошибку.
func (s *Service) nth(ctx context.Context, ordinal int) (domain.Assignment, string, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return domain.Assignment{}, "", err
	}
	if ordinal < 1 || ordinal > len(open) {
		return domain.Assignment{}, fmt.Sprintf("❓ Nomor %d tidak ada. Cek daftar dengan *#tugas*.", ordinal), nil
	}
	return open[ordinal-1], "", nil
}

func (s *Service) formatLine(a domain.Assignment) string {
	line := fmt.Sprintf("[%s] %s", a.CourseName, a.Title)
	if a.SectionCode != "" {
		line += fmt.Sprintf(" (%s)", strings.ToUpper(a.SectionCode))
	}
	return line + " — " + s.formatDeadline(a.Deadline)
}

var indonesianDays = map[time.Weekday]string{
	time.Sunday:    "Minggu",
	time.Monday:    "Senin",
	time.Tuesday:   "Selasa",
	time.Wednesday: "Rabu",
	time.Thursday:  "Kamis",
	time.Friday:    "Jumat",
	time.Saturday:  "Sabtu",
}

func (s *Service) formatDeadline(deadline *time.Time) string {
	if deadline == nil {
		return "tanpa deadline"
	}
	d := deadline.In(s.loc)
	return fmt.Sprintf("%s %s", indonesianDays[d.Weekday()], d.Format("02/01 15:04"))
}
