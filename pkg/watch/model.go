// Package watch is a live terminal inspector for the aggregated state and
// the health of every poll cell.
package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// DefaultInterval is the refresh cadence of the view.
const DefaultInterval = time.Second

const fetchTimeout = 2 * time.Second

type tickMsg time.Time

type snapshotMsg struct {
	snap Snapshot
	err  error
	at   time.Time
}

type dndMsg struct {
	on  bool
	err error
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(state.SeverityColor[signal.Error]))
	healthStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(state.SeverityColor[signal.Idle]))
)

// Model is the bubbletea model for `statebar watch`.
type Model struct {
	backend  Backend
	interval time.Duration
	keys     keyMap
	now      func() time.Time

	width     int
	snap      Snapshot
	loaded    bool
	err       error
	updated   time.Time
	showCells bool
}

// New returns a model polling backend every interval.
func New(backend Backend, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		backend:   backend,
		interval:  interval,
		keys:      newKeyMap(),
		now:       time.Now,
		width:     80,
		showCells: true,
	}
}

// Init fetches immediately and starts the ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	backend, now := m.backend, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		snap, err := backend.Fetch(ctx)
		return snapshotMsg{snap: snap, err: err, at: now()}
	}
}

func (m Model) toggleDND() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		on, err := backend.ToggleDND(ctx)
		return dndMsg{on: on, err: err}
	}
}

// Update handles keys, window size, ticks and fetch results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		case key.Matches(msg, m.keys.Cells):
			m.showCells = !m.showCells
			return m, nil
		case key.Matches(msg, m.keys.DND):
			return m, m.toggleDND()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.loaded = true
			m.updated = msg.at
		}
		return m, nil

	case dndMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.snap.DND = msg.on
		return m, m.fetch()
	}
	return m, nil
}

// View renders the headline, the per-source lines, the cell table and a
// key hint footer.
func (m Model) View() string {
	var lines []string
	lines = append(lines, titleStyle.Render("statebar"))

	switch {
	case !m.loaded && m.err != nil:
		lines = append(lines, errorStyle.Render("error: "+m.err.Error()))
	case !m.loaded:
		lines = append(lines, dimStyle.Render("loading..."))
	default:
		lines = append(lines, m.headline(), "")
		lines = append(lines, m.sourceLines()...)
		if m.showCells {
			lines = append(lines, "")
			lines = append(lines, m.cellLines()...)
		}
		if m.err != nil {
			lines = append(lines, "", errorStyle.Render("error: "+m.err.Error()))
		}
	}

	lines = append(lines, "", m.footer())
	for i, l := range lines {
		lines[i] = ansi.Truncate(l, m.width, "…")
	}
	return strings.Join(lines, "\n")
}

func (m Model) headline() string {
	st := m.snap.State
	pill := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("#1e1e2e")).
		Background(lipgloss.Color(state.SeverityColor[st.Severity])).
		Render(strings.Join(state.Glyphs(st), " "))
	dnd := ""
	if m.snap.DND {
		dnd = dimStyle.Render("  [dnd]")
	}
	return fmt.Sprintf("%s  %s  %s%s", pill, strings.ToUpper(st.Severity.String()), st.Summary, dnd)
}

func (m Model) sourceLines() []string {
	tl := state.TooltipLines(m.snap.State)
	if len(tl) == 0 {
		return []string{dimStyle.Render("  " + state.AllClear)}
	}
	out := make([]string, 0, len(tl))
	for i, l := range tl {
		category := ""
		if i < len(m.snap.State.Sources) {
			category = m.snap.State.Sources[i].Category
		}
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color(l.Color)).Render(l.Icon)
		out = append(out, fmt.Sprintf("  %s  %-5s %-13s %s", icon, l.Severity, category, l.Summary))
	}
	return out
}

func (m Model) cellLines() []string {
	out := []string{dimStyle.Render(fmt.Sprintf("  %-14s %-8s %6s %6s  %s", "cell", "health", "runs", "errors", "last error"))}
	for _, c := range m.snap.Cells {
		health := healthStyle.Render(fmt.Sprintf("%-8s", "ok"))
		if !c.Healthy {
			health = errorStyle.Render(fmt.Sprintf("%-8s", "failing"))
		}
		out = append(out, fmt.Sprintf("  %-14s %s %6d %6d  %s", c.Name, health, c.RunCount, c.ErrorCount, c.LastError))
	}
	return out
}

func (m Model) footer() string {
	hints := make([]string, 0, 5)
	for _, b := range m.keys.bindings() {
		h := b.Help()
		hints = append(hints, h.Key+":"+h.Desc)
	}
	if !m.updated.IsZero() {
		hints = append(hints, "updated "+m.updated.Format("15:04:05"))
	}
	return dimStyle.Render(strings.Join(hints, "  "))
}

// Run starts the full-screen inspector and blocks until the user quits or
// ctx ends.
func Run(ctx context.Context, backend Backend, interval time.Duration) error {
	p := tea.NewProgram(New(backend, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
