package update

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/agenda"
	"github.com/sandeepkv93/remindd/internal/views"
)

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	status := ""
	if m.Status.Text != "" {
		status = "status: " + m.Status.Text
	}
	input := ""
	if m.InputActive {
		input = m.input.View()
	}
	footer := m.helpModel.ShortHelpView(m.keys.ShortHelp())
	if m.HelpVisible {
		footer = m.helpModel.FullHelpView(m.keys.FullHelp())
	}
	return views.RenderApp(views.AppData{
		Header:     fmt.Sprintf("remindd | %s | %s", m.CurrentView, m.Day.Format("Mon 02 Jan 2006")),
		LeftPane:   m.renderMain(),
		RightPane:  m.renderSide(),
		Input:      input,
		StatusLine: status,
		IsError:    m.Status.IsError,
		Footer:     footer,
	})
}

func (m Model) renderMain() string {
	now := m.now()
	switch m.CurrentView {
	case ViewWeek:
		return views.RenderWeek(agenda.Week(m.Tasks, m.Day, now))
	case ViewSomeday:
		return views.RenderUndated(agenda.Undated(m.Tasks))
	case ViewSummary:
		return views.RenderMarkdown(views.SummaryMarkdown(agenda.Summarize(m.Tasks, now)))
	case ViewShared:
		return views.RenderShared(agenda.SharedWithMe(m.Tasks, m.identity(), now), m.Cursor)
	case ViewSearch:
		found := agenda.Search(m.Tasks, m.Query, agenda.FilterAll, now)
		var b strings.Builder
		b.WriteString(fmt.Sprintf("search %q: %d found\n", m.Query, len(found)))
		for i, t := range found {
			mark := " "
			if i == m.Cursor {
				mark = ">"
			}
			b.WriteString(fmt.Sprintf("%s %s [%s]\n", mark, t.Title, agenda.Classify(t, now)))
		}
		return strings.TrimSuffix(b.String(), "\n")
	default:
		return views.RenderDay(agenda.Day(m.Tasks, m.Day, now), m.Cursor)
	}
}

func (m Model) renderSide() string {
	parts := make([]string, 0, 2)
	if task, ok := m.selected(); ok {
		parts = append(parts, views.RenderTaskDetail(task, m.loc))
	} else {
		parts = append(parts, "(no selection)")
	}
	if r := m.LastReminder; r != nil {
		parts = append(parts, fmt.Sprintf("last reminder: %s (%s) %s", r.Title, r.Kind, r.OccurrenceAt.In(m.loc).Format(time.Kitchen)))
	}
	return strings.Join(parts, "\n\n")
}
