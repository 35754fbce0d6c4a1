package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sandeepkv93/remindd/internal/agenda"
	"github.com/sandeepkv93/remindd/internal/model"
)

var (
	overdueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	todayStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	soonStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
	dayTitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// RenderDay lists one day's occurrences. cursor is the index of the selected
// entry, or -1 for none.
func RenderDay(day agenda.DayAgenda, cursor int) string {
	var b strings.Builder
	b.WriteString(dayTitleStyle.Render(day.Date.Format("Mon 02 Jan 2006")) + "\n")
	if len(day.Entries) == 0 {
		b.WriteString("  (nothing scheduled)")
		return b.String()
	}
	for i, e := range day.Entries {
		mark := " "
		if i == cursor {
			mark = ">"
		}
		b.WriteString(fmt.Sprintf("%s %s %s%s\n", mark, e.At.Format("15:04"), styleFor(e.Status).Render(e.Task.Title), badges(e.Task)))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderWeek(days []agenda.DayAgenda) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, RenderDay(d, -1))
	}
	return strings.Join(parts, "\n\n")
}

func RenderUndated(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString(dayTitleStyle.Render("Someday") + "\n")
	if len(tasks) == 0 {
		b.WriteString("  (none)")
		return b.String()
	}
	for _, t := range tasks {
		b.WriteString("  - " + t.Title + badges(t) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderShared lists tasks shared with the viewer along with their owners.
// A negative cursor marks nothing.
func RenderShared(tasks []model.Task, cursor int) string {
	var b strings.Builder
	b.WriteString(dayTitleStyle.Render("Shared with me") + "\n")
	if len(tasks) == 0 {
		b.WriteString("  (none)")
		return b.String()
	}
	for i, t := range tasks {
		mark := " "
		if i == cursor {
			mark = ">"
		}
		b.WriteString(fmt.Sprintf(" %s %s (from %s)%s\n", mark, t.Title, t.OwnerID, badges(t)))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderTaskDetail describes a single task with times shown in loc.
func RenderTaskDetail(task model.Task, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	lines := []string{
		"id: " + task.ID,
		"title: " + task.Title,
	}
	if task.DueAt != nil {
		lines = append(lines, "due: "+task.DueAt.In(loc).Format("2006-01-02 15:04"))
	}
	if task.Recurrence.IsRecurring() {
		line := "repeats: " + task.Recurrence.String()
		if task.RecurrenceEndDate != nil {
			line += " until " + task.RecurrenceEndDate.In(loc).Format("2006-01-02")
		}
		lines = append(lines, line)
	}
	if task.RemindBeforeMinutes > 0 {
		lines = append(lines, fmt.Sprintf("lead: %dm", task.RemindBeforeMinutes))
	}
	if task.IsDisabled {
		line := "disabled"
		if task.DisabledUntil != nil {
			line += " until " + task.DisabledUntil.In(loc).Format("2006-01-02 15:04")
		}
		lines = append(lines, line)
	}
	if task.IsShared {
		lines = append(lines, "shared with: "+strings.Join(task.SharedWith, ", "))
	}
	if task.OwnerID != "" {
		lines = append(lines, "owner: "+task.OwnerID)
	}
	if task.Notes != "" {
		lines = append(lines, "", task.Notes)
	}
	return strings.Join(lines, "\n")
}

// SummaryMarkdown formats counts as a markdown table for RenderMarkdown.
func SummaryMarkdown(s agenda.Summary) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	b.WriteString("| | count |\n|---|---|\n")
	b.WriteString(fmt.Sprintf("| total | %d |\n", s.Total))
	b.WriteString(fmt.Sprintf("| pending | %d |\n", s.Pending))
	b.WriteString(fmt.Sprintf("| completed | %d |\n", s.Completed))
	b.WriteString(fmt.Sprintf("| overdue | %d |\n", s.Overdue))
	b.WriteString(fmt.Sprintf("| due today | %d |\n", s.DueToday))
	b.WriteString(fmt.Sprintf("| upcoming | %d |\n", s.Upcoming))
	b.WriteString(fmt.Sprintf("\nCompletion rate: **%.1f%%**\n", s.CompletionRate))
	return b.String()
}

func styleFor(s agenda.Status) lipgloss.Style {
	switch s {
	case agenda.StatusOverdue:
		return overdueStyle
	case agenda.StatusDueToday:
		return todayStyle
	case agenda.StatusDueTomorrow, agenda.StatusDueThisWeek:
		return soonStyle
	case agenda.StatusCompleted:
		return doneStyle
	default:
		return lipgloss.NewStyle()
	}
}

func badges(t model.Task) string {
	var out []string
	if t.Recurrence.IsRecurring() {
		out = append(out, "[repeat]")
	}
	if t.IsShared {
		out = append(out, "[shared]")
	}
	if t.IsDisabled {
		out = append(out, "[off]")
	}
	if len(out) == 0 {
		return ""
	}
	return " " + strings.Join(out, " ")
}
