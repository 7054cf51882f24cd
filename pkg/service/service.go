// Package service assembles statebar from configuration: the source cells,
// the aggregation engine, the compositor provider and the notification
// inbox, plus the daemon that serves them.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/config"
	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/sources"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// Version is reported by GetServerInformation and `statebar version`. It is
// overridden at link time.
var Version = "dev"

// Options carry process-level hooks.
type Options struct {
	Logger *slog.Logger
	// Level is adjusted when a reloaded config changes general.log_level.
	Level *slog.LevelVar
	// Runner executes the updates command; nil means poll.ExecRunner.
	Runner poll.Runner
	// SessionBus opens the bus the notification server claims its name on;
	// nil means a private session bus connection.
	SessionBus func(ctx context.Context) (*dbus.Conn, error)
}

// Service owns every long-lived component.
type Service struct {
	Registry   *poll.Registry
	Engine     *state.Engine
	Compositor *compositor.Provider
	// Inbox is nil when the notifications source is disabled.
	Inbox *notify.Inbox

	logger  *slog.Logger
	level   *slog.LevelVar
	session func(ctx context.Context) (*dbus.Conn, error)

	mu      sync.Mutex
	cfg     *config.Config
	closers []io.Closer
	server  *notify.Server
	bus     *dbus.Conn
}

// New builds the component graph. Nothing is started: cells begin polling
// when something subscribes to the engine, and no bus is touched until a
// backend first needs one.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		Registry: poll.NewRegistry(),
		logger:   logger,
		level:    opts.Level,
		session:  opts.SessionBus,
		cfg:      cfg,
	}
	if s.session == nil {
		s.session = func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSessionBus(dbus.WithContext(ctx))
		}
	}

	srcs, err := s.buildSources(cfg, opts.Runner)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Engine = state.NewEngine(srcs,
		state.WithInterval(cfg.Aggregate.Interval.Duration),
		state.WithIconPriority(cfg.Aggregate.IconPriority),
		state.WithEngineLogger(logger),
	)
	if err := s.Registry.Register(s.Engine); err != nil {
		s.Close()
		return nil, err
	}

	kind, err := compositor.ParseKind(cfg.Compositor.Backend)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Compositor = compositor.NewProvider(compositor.Options{
		Backend:          kind,
		NiriPollInterval: cfg.Compositor.NiriPollInterval.Duration,
		Logger:           logger,
	})
	return s, nil
}

// buildSources creates the enabled sources in tie-break order and registers
// every timed one.
func (s *Service) buildSources(cfg *config.Config, runner poll.Runner) ([]state.Source, error) {
	sc := cfg.Sources
	var out []state.Source
	add := func(c *sources.Cell) error {
		if err := s.Registry.Register(c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}
	cellOpts := func(interval config.Duration) []sources.Option {
		return []sources.Option{sources.WithInterval(interval.Duration), sources.WithLogger(s.logger)}
	}

	if sc.IdleInhibit.Enabled {
		backend := sources.NewSystemIdleBackend(sc.IdleInhibit.CaffeineUnit)
		s.closers = append(s.closers, backend)
		if err := add(sources.NewIdleInhibit(backend, cellOpts(sc.IdleInhibit.Interval)...)); err != nil {
			return nil, err
		}
	}

	if sc.Media.Enabled {
		mpris := sources.NewMpris()
		s.closers = append(s.closers, mpris)
		backend := sources.SystemMedia{Pactl: sources.Pactl{Runner: runner}, Mpris: mpris}
		if err := add(sources.NewMedia(backend, cellOpts(sc.Media.Interval)...)); err != nil {
			return nil, err
		}
	}

	if sc.Updates.Enabled {
		opts := append(cellOpts(sc.Updates.Interval), sources.WithTimeout(sc.Updates.Timeout.Duration))
		if err := add(sources.NewUpdates(sources.UpdatesCommand(sc.Updates.Command), runner, opts...)); err != nil {
			return nil, err
		}
	}

	if sc.Network.Enabled {
		nm := sources.NewNetworkManager()
		s.closers = append(s.closers, nm)
		backend := &sources.FallbackNetwork{
			Primary:   nm,
			Secondary: sources.InterfaceScan{},
			Logger:    s.logger.With("source", "network"),
		}
		var vpn sources.VPNProbe
		if sc.Network.Tailscale {
			vpn = sources.NewTailscale(sc.Network.TailscaleSocket)
		}
		if err := add(sources.NewNetwork(backend, vpn, cellOpts(sc.Network.Interval)...)); err != nil {
			return nil, err
		}
	}

	if sc.Notifications.Enabled {
		s.Inbox = notify.NewInbox(
			notify.WithCapacity(sc.Notifications.Capacity),
			notify.WithLogger(s.logger),
		)
		out = append(out, sources.NewNotifications(s.Inbox, sc.Notifications.Threshold))
	}
	return out, nil
}

// ServeNotifications claims org.freedesktop.Notifications when configured.
// Losing the name to another daemon is logged, not fatal; the inbox stays
// empty in that case.
func (s *Service) ServeNotifications(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Inbox == nil || !s.cfg.Sources.Notifications.Serve || s.server != nil {
		return nil
	}
	conn, err := s.session(ctx)
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	srv, err := notify.Serve(conn, s.Inbox, notify.ServerInfo{
		Name:        config.AppName,
		Vendor:      "tinyland",
		Version:     Version,
		SpecVersion: "1.2",
	}, s.logger)
	if errors.Is(err, notify.ErrNameTaken) {
		s.logger.Warn("another notification daemon is running; inbox stays empty", "error", err)
		conn.Close()
		return nil
	}
	if err != nil {
		conn.Close()
		return err
	}
	s.server = srv
	s.bus = conn
	return nil
}

// Serving reports whether the notification server owns its bus name.
func (s *Service) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Config returns the configuration currently applied.
func (s *Service) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ApplyConfig adopts the parts of cfg that can change at runtime: the icon
// priority list and the log level. Other changes need a restart and are
// logged.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	s.Engine.SetIconPriority(cfg.Aggregate.IconPriority)
	if s.level != nil {
		if lvl, err := config.ParseLogLevel(cfg.General.LogLevel); err == nil {
			s.level.Set(lvl)
		}
	}
	if restartNeeded(old, cfg) {
		s.logger.Warn("config change needs a restart to take effect")
	}
	s.logger.Info("config reloaded", "icon_priority", cfg.Aggregate.IconPriority, "log_level", cfg.General.LogLevel)
}

// restartNeeded reports changes to settings that are bound at startup.
func restartNeeded(old, cfg *config.Config) bool {
	return old.Compositor != cfg.Compositor ||
		old.Sources != cfg.Sources ||
		old.Daemon != cfg.Daemon ||
		old.Aggregate.Interval != cfg.Aggregate.Interval
}

// Daemon returns a daemon serving this service. watchPath, when set, is the
// config file to reload on change.
func (s *Service) Daemon(watchPath string) (*daemon.Daemon, error) {
	cfg := s.Config()
	deps := daemon.Deps{
		Engine:     s.Engine,
		Registry:   s.Registry,
		Compositor: s.Compositor.Adapter,
		Inbox:      s.Inbox,
		Serving:    s.Serving,
	}
	if watchPath != "" {
		w, err := config.NewWatcher(watchPath, config.DefaultDebounce, s.ApplyConfig, s.logger)
		if err != nil {
			return nil, err
		}
		deps.Tasks = append(deps.Tasks, w.Run)
	}
	return daemon.New(daemon.Options{
		PIDFile:        cfg.Daemon.PIDFile,
		SocketPath:     cfg.Daemon.SocketPath,
		StateFile:      cfg.Daemon.StateFile,
		HealthFile:     cfg.Daemon.HealthFile,
		HealthInterval: cfg.Daemon.HealthInterval.Duration,
		Logger:         s.logger,
	}, deps)
}

// Close releases the notification server, the compositor and every
// backend connection.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.server != nil {
		errs = append(errs, s.server.Close())
		s.server = nil
	}
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
		s.bus = nil
	}
	if s.Compositor != nil {
		errs = append(errs, s.Compositor.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
