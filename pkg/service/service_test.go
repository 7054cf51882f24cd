package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/statebar/pkg/config"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

type scriptRunner struct {
	out   string
	calls [][]string
}

func (r *scriptRunner) Output(_ context.Context, argv []string) ([]byte, error) {
	r.calls = append(r.calls, argv)
	return []byte(r.out), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Compositor.Backend = "fallback"
	cfg.Sources.Updates.Command = "/usr/bin/updates-json"
	cfg.Daemon.SocketPath = filepath.Join(dir, "s.sock")
	cfg.Daemon.PIDFile = filepath.Join(dir, "s.pid")
	cfg.Daemon.StateFile = filepath.Join(dir, "state.json")
	cfg.Daemon.HealthFile = filepath.Join(dir, "health.json")
	return cfg
}

func sourceNames(s *Service) []string {
	var names []string
	for _, src := range s.Engine.Sources() {
		names = append(names, src.Name())
	}
	return names
}

func TestNewBuildsEnabledSources(t *testing.T) {
	s, err := New(testConfig(t), Options{Runner: &scriptRunner{}})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"idle_inhibit", "media", "updates", "network", "notifications"}, sourceNames(s))
	assert.Equal(t, []string{"aggregate", "idle_inhibit", "media", "network", "updates"}, s.Registry.List())
	require.NotNil(t, s.Inbox)
	assert.Equal(t, "fallback", s.Compositor.Adapter().Name())
}

func TestNewWithSourcesDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.IdleInhibit.Enabled = false
	cfg.Sources.Media.Enabled = false
	cfg.Sources.Network.Enabled = false
	cfg.Sources.Notifications.Enabled = false

	s, err := New(cfg, Options{Runner: &scriptRunner{}})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"updates"}, sourceNames(s))
	assert.Nil(t, s.Inbox)
	assert.NoError(t, s.ServeNotifications(context.Background()))
	assert.False(t, s.Serving())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compositor.Backend = "sway"
	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestUpdatesFlowIntoEngine(t *testing.T) {
	runner := &scriptRunner{out: `{"class":"updates","text":"7","tooltip":"7 updates available"}`}
	s, err := New(testConfig(t), Options{Runner: runner})
	require.NoError(t, err)
	defer s.Close()

	cell, ok := s.Registry.Get("updates")
	require.True(t, ok)
	require.NoError(t, cell.Refresh(context.Background()))
	require.NoError(t, s.Engine.Refresh(context.Background()))

	st := s.Engine.Snapshot()
	assert.Equal(t, signal.Warn, st.Severity)
	assert.Equal(t, "7 updates available", st.Summary)
	require.NotEmpty(t, runner.calls)
	assert.Equal(t, []string{"bash", "-lc", "/usr/bin/updates-json"}, runner.calls[0])
}

func TestApplyConfig(t *testing.T) {
	var level slog.LevelVar
	s, err := New(testConfig(t), Options{Runner: &scriptRunner{}, Level: &level})
	require.NoError(t, err)
	defer s.Close()

	next := testConfig(t)
	next.Aggregate.IconPriority = []string{"mic", "audio"}
	next.General.LogLevel = "debug"
	s.ApplyConfig(next)

	assert.Equal(t, []string{"mic", "audio"}, s.Engine.IconPriority())
	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Same(t, next, s.Config())
}

func TestRestartNeeded(t *testing.T) {
	a := testConfig(t)
	b := *a
	assert.False(t, restartNeeded(a, &b))
	b.Compositor.Backend = "niri"
	assert.True(t, restartNeeded(a, &b))
}

func TestServeNotificationsBusError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Notifications.Serve = true
	s, err := New(cfg, Options{
		Runner: &scriptRunner{},
		SessionBus: func(context.Context) (*dbus.Conn, error) {
			return nil, errors.New("no session bus")
		},
	})
	require.NoError(t, err)
	defer s.Close()

	err = s.ServeNotifications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session bus")
	assert.False(t, s.Serving())
}

func TestDaemonFromService(t *testing.T) {
	s, err := New(testConfig(t), Options{Runner: &scriptRunner{}})
	require.NoError(t, err)
	defer s.Close()

	d, err := s.Daemon("")
	require.NoError(t, err)
	assert.NotNil(t, d)
}
