package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/rounding"
)

// HeartbeatInterval is how often the timer tells the tracker it is alive
const HeartbeatInterval = 30 * time.Second

// Tracker is the part of the session manager the timer drives
type Tracker interface {
	Pause(ctx context.Context, id string) (*models.WorkSession, error)
	Resume(ctx context.Context, id string) (*models.WorkSession, error)
	Stop(ctx context.Context, id string) (*models.WorkSession, error)
	Interrupt(ctx context.Context, id, reason string) (*models.WorkSession, error)
	Heartbeat(ctx context.Context, id string) error
}

// TimerModel is the live view of one work session
type TimerModel struct {
	width   int
	height  int
	session *models.WorkSession
	tracker Tracker
	now     func() time.Time

	keys   keyMap
	help   help.Model
	reason textinput.Model

	elapsed   time.Duration
	animation int
	err       error

	askingReason bool
	finished     bool // session reached a terminal status
	leaving      bool // user quit, session keeps running
}

type timerTickMsg time.Time

type heartbeatTickMsg struct{}

type heartbeatResultMsg struct{ err error }

// sessionMsg carries the result of a tracker call
type sessionMsg struct {
	session *models.WorkSession
	err     error
}

// NewTimerModel creates a timer for session
func NewTimerModel(session *models.WorkSession, tracker Tracker, now func() time.Time) TimerModel {
	if now == nil {
		now = time.Now
	}
	reason := textinput.New()
	reason.Placeholder = "why is this session being interrupted?"
	reason.CharLimit = 200

	return TimerModel{
		session: session,
		tracker: tracker,
		now:     now,
		keys:    defaultKeyMap(),
		help:    help.New(),
		reason:  reason,
		elapsed: session.Elapsed(now()),
	}
}

// Session returns the latest known state of the tracked session
func (m TimerModel) Session() *models.WorkSession { return m.session }

// Finished reports whether the session was stopped or interrupted
func (m TimerModel) Finished() bool { return m.finished }

// Err returns the last tracker error shown to the user
func (m TimerModel) Err() error { return m.err }

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return timerTickMsg(t) })
}

func heartbeatTick() tea.Cmd {
	return tea.Tick(HeartbeatInterval, func(time.Time) tea.Msg { return heartbeatTickMsg{} })
}

func (m TimerModel) Init() tea.Cmd {
	return tea.Batch(tick(), heartbeatTick())
}

func (m TimerModel) call(fn func(ctx context.Context) (*models.WorkSession, error)) tea.Cmd {
	return func() tea.Msg {
		s, err := fn(context.Background())
		return sessionMsg{session: s, err: err}
	}
}

func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case timerTickMsg:
		m.elapsed = m.session.Elapsed(m.now())
		m.animation = (m.animation + 1) % 4
		if m.finished || m.leaving {
			return m, nil
		}
		return m, tick()

	case heartbeatTickMsg:
		if m.finished || m.leaving {
			return m, nil
		}
		if m.session.Status != models.StatusActive {
			return m, heartbeatTick()
		}
		id := m.session.ID
		return m, tea.Batch(heartbeatTick(), func() tea.Msg {
			return heartbeatResultMsg{err: m.tracker.Heartbeat(context.Background(), id)}
		})

	case heartbeatResultMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.session = msg.session
		m.elapsed = m.session.Elapsed(m.now())
		if m.session.Status.Terminal() {
			m.finished = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.askingReason {
			return m.updateReason(msg)
		}
		id := m.session.ID
		switch {
		case key.Matches(msg, m.keys.Pause):
			if m.session.Status == models.StatusPaused {
				return m, m.call(func(ctx context.Context) (*models.WorkSession, error) { return m.tracker.Resume(ctx, id) })
			}
			return m, m.call(func(ctx context.Context) (*models.WorkSession, error) { return m.tracker.Pause(ctx, id) })
		case key.Matches(msg, m.keys.Stop):
			return m, m.call(func(ctx context.Context) (*models.WorkSession, error) { return m.tracker.Stop(ctx, id) })
		case key.Matches(msg, m.keys.Interrupt):
			m.askingReason = true
			m.reason.SetValue("")
			cmd := m.reason.Focus()
			return m, cmd
		case key.Matches(msg, m.keys.Leave):
			m.leaving = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m TimerModel) updateReason(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.askingReason = false
		m.reason.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		reason := strings.TrimSpace(m.reason.Value())
		if reason == "" {
			reason = "interrupted by user"
		}
		m.askingReason = false
		m.reason.Blur()
		id := m.session.ID
		return m, m.call(func(ctx context.Context) (*models.WorkSession, error) {
			return m.tracker.Interrupt(ctx, id, reason)
		})
	}
	var cmd tea.Cmd
	m.reason, cmd = m.reason.Update(msg)
	return m, cmd
}

func (m TimerModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(footer) - 1

	if m.width < 90 {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderTimerPanel(m.width, contentHeight),
			footer,
		)
	}

	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth - 2
	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderTimerPanel(leftWidth, contentHeight),
		"  ",
		m.renderDetailsPanel(rightWidth, contentHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, content, footer)
}

func centered(width int) lipgloss.Style {
	return lipgloss.NewStyle().Align(lipgloss.Center).Width(width)
}

func (m TimerModel) renderTimerPanel(width, height int) string {
	var components []string

	header := "TRACKING TIME"
	headerColor := ColorAccentBright
	if m.session.Status == models.StatusPaused {
		header = "PAUSED"
		headerColor = ColorWarning
	}
	anim := []string{"⏱", "⏲", "⏱", "⏲"}[m.animation]
	components = append(components, centered(width).
		Foreground(lipgloss.Color(headerColor)).
		Bold(true).
		Render(fmt.Sprintf("%s  %s  %s", anim, header, anim)))

	title := m.session.Activity
	if title == "" {
		title = "(no activity)"
	}
	if width > 10 && len(title) > width-4 {
		title = title[:width-7] + "..."
	}
	components = append(components, centered(width).
		Foreground(lipgloss.Color(ColorPrimaryText)).
		Bold(true).
		Render(title))

	clock := strings.Split(renderBigClock(m.elapsed, headerColor), "\n")
	for i, line := range clock {
		clock[i] = centered(width).Render(line)
	}
	components = append(components, strings.Join(clock, "\n"))

	billable := rounding.Round(rounding.Minutes(m.elapsed))
	components = append(components, centered(width).
		Foreground(lipgloss.Color(ColorSecondaryText)).
		Italic(true).
		Render(fmt.Sprintf("Started at %s · billable so far %dm",
			m.session.StartedAt.Local().Format("15:04:05"), billable)))

	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(components, "\n\n"))
}

func (m TimerModel) renderDetailsPanel(width, height int) string {
	s := m.session
	row := func(label, value string) string {
		color := ColorAccentBright
		if value == "" {
			value = "none"
			color = ColorDisabledText
		}
		return centered(width - 8).Render(fmt.Sprintf("%s: %s", label,
			lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(value)))
	}

	lines := []string{
		lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorPrimaryText)).
			Align(lipgloss.Center).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorAccentMain)).
			Width(width-12).
			Padding(0, 1).
			Render("session " + shortID(s.ID)),
		"",
		row("Status", string(s.Status)),
		row("Module", s.Module),
		row("Category", s.Category),
		row("Priority", s.Priority),
		row("Project", s.ProjectRef),
		row("Order", s.OrderRef),
		row("Task", s.TaskRef),
	}
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		AlignVertical(lipgloss.Center).
		Render(strings.Join(lines, "\n"))
}

func (m TimerModel) renderFooter() string {
	var parts []string
	if m.err != nil {
		parts = append(parts, centered(m.width).
			Foreground(lipgloss.Color(ColorError)).
			Render("error: "+m.err.Error()))
	}
	if m.askingReason {
		parts = append(parts, centered(m.width).Render("Interrupt reason: "+m.reason.View()))
		parts = append(parts, centered(m.width).
			Foreground(lipgloss.Color(ColorHelpText)).
			Render(m.help.ShortHelpView([]key.Binding{m.keys.Confirm, m.keys.Cancel})))
		return strings.Join(parts, "\n")
	}
	parts = append(parts, centered(m.width).Render(m.help.View(m.keys)))
	return strings.Join(parts, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// 5-row block digits for the big clock
var bigDigits = map[rune][5]string{
	'0': {" ███ ", "█   █", "█   █", "█   █", " ███ "},
	'1': {"  █  ", " ██  ", "  █  ", "  █  ", "█████"},
	'2': {" ███ ", "█   █", "   █ ", "  █  ", "█████"},
	'3': {" ███ ", "█   █", "  ██ ", "█   █", " ███ "},
	'4': {"█   █", "█   █", "█████", "    █", "    █"},
	'5': {"█████", "█    ", "████ ", "    █", "████ "},
	'6': {" ███ ", "█    ", "████ ", "█   █", " ███ "},
	'7': {"█████", "    █", "   █ ", "  █  ", " █   "},
	'8': {" ███ ", "█   █", " ███ ", "█   █", " ███ "},
	'9': {" ███ ", "█   █", " ████", "    █", " ███ "},
	':': {"     ", "  █  ", "     ", "  █  ", "     "},
}

func renderBigClock(d time.Duration, color string) string {
	var lines [5]strings.Builder
	for _, ch := range clockText(d) {
		art := bigDigits[ch]
		for i := range lines {
			lines[i].WriteString(art[i])
			lines[i].WriteString(" ")
		}
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = style.Render(lines[i].String())
	}
	return strings.Join(out, "\n")
}

// clockText formats d as mm:ss, or hh:mm:ss from one hour on
func clockText(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	mi := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
	}
	return fmt.Sprintf("%02d:%02d", mi, s)
}

// RunTimer shows the timer until the session ends or the user leaves.
// It returns the final model so callers can report the outcome.
func RunTimer(session *models.WorkSession, tracker Tracker) (TimerModel, error) {
	p := tea.NewProgram(NewTimerModel(session, tracker, nil), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return TimerModel{}, err
	}
	return final.(TimerModel), nil
}
