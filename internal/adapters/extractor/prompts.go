package extractor

import (
	"fmt"
	"strings"
	"time"

	"tugas-bot/internal/domain"
)

// buildClassificationPrompt собирает единый промпт для всех звеньев цепочки.
// Относительные даты вычисляются здесь, чтобы модель копировала готовые
// строки, а не считала календарь сама.
func buildClassificationPrompt(in domain.ExtractionInput) string {
	now := in.Now
	var b strings.Builder

	b.WriteString("You are a bilingual (Indonesian/English) academic assistant that extracts structured assignment information from group chat messages.\n\n")
	b.WriteString("CONTEXT\n")
	fmt.Fprintf(&b, "Current time: %s\n", now.Format("2006-01-02 15:04:05 -0700"))
	fmt.Fprintf(&b, "Today's date: %s\n\n", now.Format("2006-01-02"))
	b.WriteString("REFERENCE DATES (USE THESE EXACT DATES):\n")
	fmt.Fprintf(&b, "- Besok / Tomorrow: %s\n", now.AddDate(0, 0, 1).Format("2006-01-02"))
	fmt.Fprintf(&b, "- Lusa / Day after tomorrow: %s\n", now.AddDate(0, 0, 2).Format("2006-01-02"))
	fmt.Fprintf(&b, "- Minggu depan / Next week: %s\n\n", now.AddDate(0, 0, 7).Format("2006-01-02"))

	fmt.Fprintf(&b, "Message: %q\n\n", in.Text)

	b.WriteString("Available courses:\n")
	if len(in.Courses) == 0 {
		b.WriteString("(none)\n")
	}
	for _, course := range in.Courses {
		fmt.Fprintf(&b, "- %s", course.Name)
		if len(course.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(course.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("Resolved hints (fallback priors, never override explicit message content):\n")
	b.WriteString(serializeContext(in.Context))
	b.WriteString("\n")

	b.WriteString("Active assignments (recent):\n")
	b.WriteString(serializeAssignments(in.Open))
	b.WriteString("\n")

	b.WriteString(`TASK
Classify this message as one of:
1. MULTIPLE_ASSIGNMENTS - message contains 2+ assignments (CHECK FIRST)
2. NEW_ASSIGNMENT - announcing a single new task
3. UPDATE_ASSIGNMENT - modifying/clarifying an existing assignment
4. UNRECOGNIZED - not about assignments

RULES
- course_name must match one of the available courses (case-insensitive); use null when no course is identifiable
- Each course gets its own parallel code; NEVER copy a parallel from a neighbouring course
- assignment_update covers: deadline changes, cancellations, corrections, clarifications ("jadinya", "ternyata", "diundur", "ganti")
- reference_keywords should be 2-4 words identifying the original assignment
- Dates must be YYYY-MM-DD or "YYYY-MM-DD HH:MM"; copy reference dates above verbatim for relative phrases
- Always generate a non-empty description; when minimal use "[course] [assignment type] [identifier]"
- When uncertain: NEW over UPDATE; classification over UNRECOGNIZED

OUTPUT FORMATS (return exactly one JSON object, no markdown)
{"type":"multiple_assignments","assignments":[{"course_name":"Pemrograman","title":"LKP 14","deadline":"2025-12-31","description":"...","parallel_code":"k1"}]}
{"type":"assignment_info","course_name":"Pemrograman","title":"LKP 14","deadline":"2025-12-31 10:00","description":"...","parallel_code":"k1"}
{"type":"assignment_update","reference_keywords":["pemrog","lkp 13"],"changes":"deadline moved","new_deadline":"2025-12-30","new_title":null,"new_description":null,"parallel_code":null}
{"type":"unrecognized"}
`)

	return b.String()
}

func serializeContext(mc domain.MessageContext) string {
	var b strings.Builder
	if mc.GlobalSection != "" {
		fmt.Fprintf(&b, "global parallel: %s (confidence %.2f, source %s)\n", mc.GlobalSection, mc.SectionConfidence, mc.SectionSource)
	} else {
		b.WriteString("global parallel: unknown\n")
	}
	fmt.Fprintf(&b, "deadline type: %s\n", mc.DeadlineType)
	for _, hint := range mc.CourseHints {
		fmt.Fprintf(&b, "- %s: parallel=%s", hint.Course.Name, orDash(hint.SectionCode))
		if hint.DeadlineHint != nil {
			fmt.Fprintf(&b, ", deadline hint=%s", hint.DeadlineHint.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	if len(mc.CourseHints) == 0 {
		b.WriteString("(no course hints)\n")
	}
	return b.String()
}

func serializeAssignments(assignments []domain.Assignment) string {
	if len(assignments) == 0 {
		return "(none)\n"
	}
	const maxShown = 100
	var b strings.Builder
	for i, a := range assignments {
		if i >= maxShown {
			fmt.Fprintf(&b, "(showing %d of %d)\n", maxShown, len(assignments))
			break
		}
		deadline := "no deadline"
		if a.Deadline != nil {
			deadline = a.Deadline.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- Course: %s, Title: %q, Deadline: %s, Parallel: %s, Desc: %q\n",
			a.CourseName, a.Title, deadline, orDash(a.SectionCode), clipRunes(a.Description, 80))
	}
	return b.String()
}

// buildMatchingPrompt собирает промпт верификации дубликата/обновления.
func buildMatchingPrompt(title, description, changes string, keywords []string, candidates []domain.Assignment, now time.Time) string {
	var b strings.Builder
	b.WriteString("Match this assignment update/draft to one of the existing assignments.\n\n")
	fmt.Fprintf(&b, "Time: %s\n", now.Format("2006-01-02 15:04:05"))
	if title != "" {
		fmt.Fprintf(&b, "Draft title: %q\n", title)
	}
	if description != "" {
		fmt.Fprintf(&b, "Draft description: %q\n", clipRunes(description, 120))
	}
	if changes != "" {
		fmt.Fprintf(&b, "Update: %q\n", changes)
	}
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(keywords, ", "))
	}
	b.WriteString("\nCandidates:\n")
	for i, a := range candidates {
		deadline := "no deadline"
		if a.Deadline != nil {
			deadline = a.Deadline.Format("2006-01-02")
		}
		ago := now.Sub(a.CreatedAt)
		fmt.Fprintf(&b, "#%d: %s | %q | Parallel: %s | Deadline: %s | Desc: %q | created %s ago\n",
			i+1, a.CourseName, a.Title, orDash(a.SectionCode), deadline, clipRunes(a.Description, 60), humanAge(ago))
	}
	b.WriteString(`
TASK: Decide which candidate (if any) this refers to. Match by course, identifying keywords and numbering; semantic understanding over exact strings. Different parallel codes are different assignments.
OUTPUT: {"match_index":1,"confidence":"high","reason":"..."} or {"match_index":null,"confidence":"low","reason":"..."}
Return ONLY valid JSON.`)
	return b.String()
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}

func orDash(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func clipRunes(text string, limit int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
