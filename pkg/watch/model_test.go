package watch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

type fakeBackend struct {
	snap    Snapshot
	err     error
	dnd     bool
	fetches int
}

func (f *fakeBackend) Fetch(context.Context) (Snapshot, error) {
	f.fetches++
	return f.snap, f.err
}

func (f *fakeBackend) ToggleDND(context.Context) (bool, error) {
	f.dnd = !f.dnd
	return f.dnd, nil
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		State: state.Resolve([]*signal.Signal{
			{Severity: signal.Error, Category: "network", Icon: "X", Summary: "No network connection", Contextual: true},
			{Severity: signal.Info, Category: "mic", Icon: "M", Summary: "Microphone is active", Contextual: true},
		}, state.DefaultIconPriority),
		Cells: []daemon.CellHealth{
			{Name: "network", Healthy: true, RunCount: 3},
			{Name: "updates", Healthy: false, RunCount: 1, ErrorCount: 1, LastError: "exit status 2"},
		},
	}
}

// run executes cmd and feeds its message back, the way the runtime would.
func run(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	return m
}

func TestViewBeforeLoad(t *testing.T) {
	m := New(&fakeBackend{}, time.Second)
	assert.Contains(t, m.View(), "loading...")
}

func TestFetchAndView(t *testing.T) {
	backend := &fakeBackend{snap: sampleSnapshot()}
	var m tea.Model = New(backend, time.Second)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m = run(t, m, m.(Model).fetch())
	view := m.View()

	assert.Contains(t, view, "ERROR")
	assert.Contains(t, view, "No network connection")
	assert.Contains(t, view, "Microphone is active")
	assert.Contains(t, view, "exit status 2")
	assert.Contains(t, view, "failing")
	assert.Contains(t, view, "q:quit")
	assert.Equal(t, 1, backend.fetches)
}

func TestToggleCells(t *testing.T) {
	backend := &fakeBackend{snap: sampleSnapshot()}
	var m tea.Model = New(backend, time.Second)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120})
	m = run(t, m, m.(Model).fetch())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.NotContains(t, m.View(), "exit status 2")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Contains(t, m.View(), "exit status 2")
}

func TestFetchErrorKeepsLastSnapshot(t *testing.T) {
	backend := &fakeBackend{snap: sampleSnapshot()}
	var m tea.Model = New(backend, time.Second)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120})
	m = run(t, m, m.(Model).fetch())

	backend.err = errors.New("connect to daemon: refused")
	m = run(t, m, m.(Model).fetch())
	view := m.View()
	assert.Contains(t, view, "No network connection")
	assert.Contains(t, view, "connect to daemon: refused")
}

func TestErrorBeforeLoad(t *testing.T) {
	var m tea.Model = New(&fakeBackend{err: errors.New("no daemon")}, time.Second)
	m = run(t, m, m.(Model).fetch())
	assert.Contains(t, m.View(), "error: no daemon")
}

func TestQuitKey(t *testing.T) {
	m := New(&fakeBackend{}, time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestDNDKey(t *testing.T) {
	backend := &fakeBackend{snap: sampleSnapshot()}
	var m tea.Model = New(backend, time.Second)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120})
	m = run(t, m, m.(Model).fetch())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m, _ = m.Update(cmd())
	assert.True(t, backend.dnd)
	assert.Contains(t, m.View(), "[dnd]")
}

func TestViewTruncatesToWidth(t *testing.T) {
	backend := &fakeBackend{snap: sampleSnapshot()}
	var m tea.Model = New(backend, time.Second)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 20})
	m = run(t, m, m.(Model).fetch())

	for _, line := range strings.Split(m.View(), "\n") {
		assert.LessOrEqual(t, ansi.StringWidth(line), 20, line)
	}
}

func TestLocalBackend(t *testing.T) {
	engine := state.NewEngine([]state.Source{
		state.SourceFunc("updates", func() *signal.Signal {
			return &signal.Signal{Severity: signal.Warn, Category: "updates", Summary: "1 update"}
		}),
	})
	require.NoError(t, engine.Refresh(context.Background()))
	registry := poll.NewRegistry()
	require.NoError(t, registry.Register(engine))
	inbox := notify.NewInbox()

	b := LocalBackend{Engine: engine, Registry: registry, Inbox: inbox}
	snap, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 update", snap.State.Summary)
	require.Len(t, snap.Cells, 1)
	assert.Equal(t, "aggregate", snap.Cells[0].Name)

	on, err := b.ToggleDND(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, inbox.DND())

	_, err = LocalBackend{Engine: engine, Registry: registry}.ToggleDND(context.Background())
	assert.ErrorIs(t, err, daemon.ErrNotificationsDisabled)
}
