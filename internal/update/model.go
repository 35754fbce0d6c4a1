package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
)

type View string

const (
	ViewToday   View = "Today"
	ViewWeek    View = "Week"
	ViewSomeday View = "Someday"
	ViewSummary View = "Summary"
	ViewSearch  View = "Search"
	ViewShared  View = "Shared"
)

// Backend is the part of the task service the agenda drives.
// service.TaskService implements it.
type Backend interface {
	List(ctx context.Context) ([]model.Task, error)
	Complete(ctx context.Context, id string) (model.Task, error)
	CommandHandlers(ctx context.Context, loc *time.Location, show func(commands.ShowArgs) (commands.Result, error)) commands.Handlers
}

type Options struct {
	Context  context.Context
	Location *time.Location
	Now      func() time.Time
	// Reminders, when set, feeds fired notifications into the status pane.
	Reminders <-chan notify.Notification
	// Refresh is how often the task list is reloaded; zero means every 30s.
	Refresh time.Duration
	// Identity reports who is signed in, for the shared-with-me view.
	Identity func() string
}

type StatusBar struct {
	Text    string
	IsError bool
}

type Model struct {
	CurrentView  View
	Day          time.Time
	Cursor       int
	Query        string
	Tasks        []model.Task
	Status       StatusBar
	HelpVisible  bool
	InputActive  bool
	LastReminder *notify.Notification
	Quitting     bool

	keys      keyMap
	input     textinput.Model
	helpModel help.Model
	backend   Backend
	ctx       context.Context
	loc       *time.Location
	now       func() time.Time
	reminders <-chan notify.Notification
	refresh   time.Duration
	identity  func() string
}

func NewModel(backend Backend, opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 30 * time.Second
	}
	if opts.Identity == nil {
		opts.Identity = func() string { return "" }
	}
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "add pay rent at:tomorrow every:monthly"
	input.CharLimit = 256
	input.Width = 60

	m := Model{
		CurrentView: ViewToday,
		keys:        defaultKeyMap(),
		input:       input,
		helpModel:   help.New(),
		backend:     backend,
		ctx:         opts.Context,
		loc:         opts.Location,
		now:         opts.Now,
		reminders:   opts.Reminders,
		refresh:     opts.Refresh,
		identity:    opts.Identity,
	}
	m.Day = m.today()
	return m
}

func (m Model) today() time.Time {
	n := m.now().In(m.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, m.loc)
}
