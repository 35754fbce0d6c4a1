package update

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/remindd/internal/agenda"
	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
)

type TasksLoadedMsg struct {
	Tasks []model.Task
	Err   error
}

type ReminderMsg struct {
	Notification notify.Notification
}

type TickMsg time.Time

type SetStatusMsg struct {
	Text    string
	IsError bool
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasksCmd(), waitForReminderCmd(m.reminders), m.tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.InputActive {
			return m.handleInputKey(typed)
		}
		return m.handleKey(typed)
	case TasksLoadedMsg:
		if typed.Err != nil {
			m.Status = errorStatus(typed.Err)
			return m, nil
		}
		m.Tasks = typed.Tasks
		m.clampCursor()
		return m, nil
	case ReminderMsg:
		n := typed.Notification
		m.LastReminder = &n
		m.Status = StatusBar{Text: fmt.Sprintf("reminder: %s", n.Title)}
		return m, tea.Batch(m.loadTasksCmd(), waitForReminderCmd(m.reminders))
	case TickMsg:
		return m, tea.Batch(m.loadTasksCmd(), m.tickCmd())
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Command):
		m.InputActive = true
		m.input.SetValue("")
		m.input.Focus()
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.HelpVisible = !m.HelpVisible
	case key.Matches(msg, m.keys.Today):
		m.CurrentView = ViewToday
		m.Day = m.today()
		m.Cursor = 0
	case key.Matches(msg, m.keys.Week):
		m.CurrentView = ViewWeek
	case key.Matches(msg, m.keys.Someday):
		m.CurrentView = ViewSomeday
		m.Cursor = 0
	case key.Matches(msg, m.keys.Summary):
		m.CurrentView = ViewSummary
	case key.Matches(msg, m.keys.Prev):
		m.Day = m.Day.AddDate(0, 0, -1)
		m.Cursor = 0
	case key.Matches(msg, m.keys.Next):
		m.Day = m.Day.AddDate(0, 0, 1)
		m.Cursor = 0
	case key.Matches(msg, m.keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}
	case key.Matches(msg, m.keys.Down):
		m.Cursor++
		m.clampCursor()
	case key.Matches(msg, m.keys.Reload):
		return m, m.loadTasksCmd()
	case key.Matches(msg, m.keys.Done):
		return m.completeSelected()
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil
	case tea.KeyEnter:
		raw := strings.TrimSpace(m.input.Value())
		m.closeInput()
		if raw == "" {
			return m, nil
		}
		return m.runCommand(raw)
	case tea.KeyRunes:
		m.input.SetValue(m.input.Value() + string(msg.Runes))
		m.input.CursorEnd()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.InputActive = false
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) runCommand(raw string) (tea.Model, tea.Cmd) {
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = errorStatus(err)
		return m, nil
	}
	res, err := commands.Execute(cmd, m.backend.CommandHandlers(m.ctx, m.loc, func(a commands.ShowArgs) (commands.Result, error) {
		m.Cursor = 0
		switch a.Subject {
		case "today":
			m.CurrentView = ViewToday
			m.Day = m.today()
		case "week":
			m.CurrentView = ViewWeek
		case "summary":
			m.CurrentView = ViewSummary
		case "undated":
			m.CurrentView = ViewSomeday
		case "search":
			m.CurrentView = ViewSearch
			m.Query = a.Query
		case "shared":
			m.CurrentView = ViewShared
		}
		return commands.Result{Message: "showing " + a.Subject}, nil
	}))
	if err != nil {
		m.Status = errorStatus(err)
		return m, nil
	}
	m.Status = StatusBar{Text: res.Message}
	return m, m.loadTasksCmd()
}

func (m Model) completeSelected() (tea.Model, tea.Cmd) {
	selected, ok := m.selected()
	if !ok {
		m.Status = StatusBar{Text: "nothing selected", IsError: true}
		return m, nil
	}
	task, err := m.backend.Complete(m.ctx, selected.ID)
	if err != nil {
		m.Status = errorStatus(err)
		return m, nil
	}
	m.Status = StatusBar{Text: fmt.Sprintf("completed %q", task.Title)}
	return m, m.loadTasksCmd()
}

// selectable lists the tasks the cursor moves over in the current view.
func (m Model) selectable() []model.Task {
	now := m.now()
	switch m.CurrentView {
	case ViewToday:
		day := agenda.Day(m.Tasks, m.Day, now)
		out := make([]model.Task, 0, len(day.Entries))
		for _, e := range day.Entries {
			out = append(out, e.Task)
		}
		return out
	case ViewSomeday:
		return agenda.Undated(m.Tasks)
	case ViewSearch:
		return agenda.Search(m.Tasks, m.Query, agenda.FilterAll, now)
	case ViewShared:
		return agenda.SharedWithMe(m.Tasks, m.identity(), now)
	default:
		return nil
	}
}

func (m Model) selected() (model.Task, bool) {
	items := m.selectable()
	if m.Cursor < 0 || m.Cursor >= len(items) {
		return model.Task{}, false
	}
	return items[m.Cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.selectable())
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

func (m Model) loadTasksCmd() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		tasks, err := backend.List(ctx)
		return TasksLoadedMsg{Tasks: tasks, Err: err}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func waitForReminderCmd(ch <-chan notify.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return ReminderMsg{Notification: n}
	}
}

func errorStatus(err error) StatusBar {
	text := err.Error()
	if hint := apperr.Guidance(err); hint != "" {
		text += " (" + hint + ")"
	}
	return StatusBar{Text: text, IsError: true}
}
