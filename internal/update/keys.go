package update

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Today   key.Binding
	Week    key.Binding
	Someday key.Binding
	Summary key.Binding
	Prev    key.Binding
	Next    key.Binding
	Up      key.Binding
	Down    key.Binding
	Done    key.Binding
	Command key.Binding
	Reload  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Today:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "today")),
		Week:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "week")),
		Someday: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undated")),
		Summary: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "summary")),
		Prev:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "previous day")),
		Next:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "next day")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		Done:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "complete")),
		Command: key.NewBinding(key.WithKeys(":", "/"), key.WithHelp(":", "command")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Today, k.Week, k.Command, k.Done, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Today, k.Week, k.Someday, k.Summary},
		{k.Prev, k.Next, k.Up, k.Down},
		{k.Done, k.Command, k.Reload, k.Help, k.Quit},
	}
}
