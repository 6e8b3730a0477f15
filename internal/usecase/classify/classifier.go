package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind — первичная сортировка входящего сообщения.
type Kind string

const (
	// KindCommand — сообщение начинается с решётки и адресовано боту.
	KindCommand Kind = "command"
	// KindCandidate — обычный текст или изображение, идёт в конвейер извлечения.
	KindCandidate Kind = "candidate"
	// KindIgnorable — пустое или заведомо бесполезное сообщение.
	KindIgnorable Kind = "ignorable"
)

// CommandName — каноническое имя распознанной команды.
type CommandName string

const (
	CmdPing    CommandName = "ping"
	CmdList    CommandName = "list"
	CmdToday   CommandName = "today"
	CmdDone    CommandName = "done"
	CmdUndo    CommandName = "undo"
	CmdExpand  CommandName = "expand"
	CmdHelp    CommandName = "help"
	CmdUnknown CommandName = "unknown"
)

// Result — итог классификации одного сообщения.
type Result struct {
	Kind    Kind
	Command CommandName
	// Ordinal — числовой аргумент для done/expand, нумерация с единицы.
	Ordinal int
	// Raw — исходный текст команды без решётки, для подсказок.
	Raw string
}

var ordinalRe = regexp.MustCompile(`^(\d+)$`)

// Classify сортирует входящее сообщение. Решётка в начале всегда означает
// команду: опечатки не проваливаются в конвейер извлечения.
func Classify(text string, hasImage bool) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && !hasImage {
		return Result{Kind: KindIgnorable}
	}
	if !strings.HasPrefix(trimmed, "#") {
		return Result{Kind: KindCandidate}
	}

	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	if body == "" {
		return Result{Kind: KindCommand, Command: CmdUnknown}
	}

	fields := strings.Fields(strings.ToLower(body))
	head, rest := fields[0], fields[1:]

	// "#3" — короткая форма развёртки третьего задания из списка.
	if m := ordinalRe.FindStringSubmatch(head); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Result{Kind: KindCommand, Command: CmdExpand, Ordinal: n, Raw: body}
	}

	switch head {
	case "ping":
		return Result{Kind: KindCommand, Command: CmdPing, Raw: body}
	case "tugas", "todo", "list":
		// "#tugas 3" — та же развёртка, что и "#3".
		if n, ok := firstOrdinal(rest); ok {
			return Result{Kind: KindCommand, Command: CmdExpand, Ordinal: n, Raw: body}
		}
		return Result{Kind: KindCommand, Command: CmdList, Raw: body}
	case "today", "hariini":
		return Result{Kind: KindCommand, Command: CmdToday, Raw: body}
	case "help", "bantuan":
		return Result{Kind: KindCommand, Command: CmdHelp, Raw: body}
	case "done", "selesai", "beres":
		if n, ok := firstOrdinal(rest); ok {
			return Result{Kind: KindCommand, Command: CmdDone, Ordinal: n, Raw: body}
		}
		return Result{Kind: KindCommand, Command: CmdUnknown, Raw: body}
	case "undo", "undone", "batal":
		// Откатывается только последний #done, номер не нужен.
		return Result{Kind: KindCommand, Command: CmdUndo, Raw: body}
	case "expand", "detail":
		if n, ok := firstOrdinal(rest); ok {
			return Result{Kind: KindCommand, Command: CmdExpand, Ordinal: n, Raw: body}
		}
		return Result{Kind: KindCommand, Command: CmdUnknown, Raw: body}
	default:
		return Result{Kind: KindCommand, Command: CmdUnknown, Raw: body}
	}
}

func firstOrdinal(fields []string) (int, bool) {
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Suggest возвращает ближайшую известную команду для подсказки в ответе
// на нераспознанную. Пустая строка — подсказки нет.
func Suggest(raw string) string {
	head := raw
	if idx := strings.IndexByte(head, ' '); idx > 0 {
		head = head[:idx]
	}
	head = strings.ToLower(head)
	known := []string{"ping", "tugas", "today", "done", "undo", "expand", "help"}
	best, bestDist := "", 3
	for _, cand := range known {
		if d := editDistance(head, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
