package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/valentindosimont/focusgate/internal/client"
	"github.com/valentindosimont/focusgate/internal/coordinator"
	"github.com/valentindosimont/focusgate/internal/tui/messages"
)

const (
	tickInterval = 200 * time.Millisecond
	pollInterval = 2 * time.Second
	callTimeout  = 5 * time.Second
)

// API is the part of the daemon client the view uses
type API interface {
	State(ctx context.Context) (client.State, error)
	Call(ctx context.Context, msg coordinator.Message, out any) error
}

// Model is the focus countdown view
type Model struct {
	api            API
	defaultMinutes int
	now            func() time.Time

	width  int
	height int

	state     client.State
	fetchedAt time.Time
	connected bool
	lastError error
	note      string
	showHelp  bool

	bar progress.Model
}

// New creates the watch model
func New(api API, defaultMinutes int) *Model {
	return &Model{
		api:            api,
		defaultMinutes: defaultMinutes,
		now:            time.Now,
		bar:            progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Run shows the view until the user quits
func Run(api API, defaultMinutes int) error {
	p := tea.NewProgram(New(api, defaultMinutes), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.fetchCmd())
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return messages.TickMsg{Time: t}
	})
}

func (m *Model) pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return messages.PollMsg{}
	})
}

func (m *Model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		s, err := m.api.State(ctx)
		return messages.StateMsg{State: s, FetchedAt: m.now(), Err: err}
	}
}

func (m *Model) actionCmd(msg coordinator.Message, note string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		err := m.api.Call(ctx, msg, nil)
		return messages.ActionDoneMsg{Note: note, Err: err}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.TickMsg:
		return m, m.tickCmd()

	case messages.PollMsg:
		return m, m.fetchCmd()

	case messages.StateMsg:
		if msg.Err != nil {
			m.connected = false
			m.lastError = msg.Err
		} else {
			m.connected = true
			m.lastError = nil
			m.state = msg.State
			m.fetchedAt = msg.FetchedAt
		}
		return m, m.pollCmd()

	case messages.ActionDoneMsg:
		if msg.Err != nil {
			m.lastError = msg.Err
			m.note = ""
		} else {
			m.lastError = nil
			m.note = msg.Note
		}
		return m, m.fetchCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(60, msg.Width-8))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "s":
		return m, m.actionCmd(
			coordinator.Message{Action: "startTimer", Minutes: m.defaultMinutes, Source: "watch"},
			fmt.Sprintf("Started a %d minute session", m.defaultMinutes),
		)
	case "r":
		return m, m.actionCmd(coordinator.Message{Action: "reduceTimer", Minutes: 1}, "Reduced by 1 minute")
	case "x":
		return m, m.actionCmd(coordinator.Message{Action: "expireTimer"}, "Session ended")
	case "b":
		enabled := !m.state.Enabled
		note := "Blocking on"
		if !enabled {
			note = "Blocking off"
		}
		return m, m.actionCmd(coordinator.Message{Action: "toggle", Enabled: &enabled}, note)
	}
	return m, nil
}

// remaining estimates the time left, advancing the daemon's answer by the
// local time elapsed since it was fetched.
func (m *Model) remaining() time.Duration {
	if !m.state.TimerActive {
		return 0
	}
	d := m.state.Remaining() - m.now().Sub(m.fetchedAt)
	if d < 0 {
		return 0
	}
	return d
}

// elapsedFraction is the share of the session already spent, in [0, 1]
func (m *Model) elapsedFraction() float64 {
	total := m.state.EndTime().Sub(m.state.StartTime())
	if !m.state.TimerActive || total <= 0 {
		return 0
	}
	f := 1 - float64(m.remaining())/float64(total)
	return min(1, max(0, f))
}
