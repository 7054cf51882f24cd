// Package daemon runs the long-lived statebar process: PID lock, IPC
// socket, state snapshot file and periodic health reports.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// DefaultHealthInterval is how often the health file is rewritten.
const DefaultHealthInterval = 10 * time.Second

// Options locates the runtime files.
type Options struct {
	PIDFile        string
	SocketPath     string
	StateFile      string
	HealthFile     string
	HealthInterval time.Duration
	Logger         *slog.Logger
}

// Deps are the subsystems the daemon serves.
type Deps struct {
	Engine     *state.Engine
	Registry   *poll.Registry
	Compositor func() compositor.Adapter
	// Inbox is nil when notifications are disabled.
	Inbox *notify.Inbox
	// Serving reports whether the notification D-Bus name is owned.
	Serving func() bool
	// Tasks run alongside the daemon and stop with it.
	Tasks []func(ctx context.Context) error
}

// Daemon ties the aggregation engine to its on-disk and socket surfaces.
type Daemon struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	now     func() time.Time
	started time.Time
	state   *StateFile
}

// New validates opts and returns a daemon ready to Run.
func New(opts Options, deps Deps) (*Daemon, error) {
	if opts.PIDFile == "" || opts.SocketPath == "" {
		return nil, errors.New("daemon: PID file and socket path are required")
	}
	if deps.Engine == nil || deps.Registry == nil || deps.Compositor == nil {
		return nil, errors.New("daemon: engine, registry and compositor are required")
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	d := &Daemon{
		opts:   opts,
		deps:   deps,
		logger: logger.With("component", "daemon"),
		now:    time.Now,
	}
	if opts.StateFile != "" {
		d.state = NewStateFile(opts.StateFile)
	}
	return d, nil
}

// Run holds the PID lock and serves until ctx is cancelled, a task fails,
// or a client sends QUIT. Runtime files are removed on the way out.
func (d *Daemon) Run(ctx context.Context) error {
	if err := AcquirePID(d.opts.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := ReleasePID(d.opts.PIDFile); err != nil {
			d.logger.Warn("release PID file", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.started = d.now()
	dispatcher := &Dispatcher{
		Engine:     d.deps.Engine,
		Registry:   d.deps.Registry,
		Compositor: d.deps.Compositor,
		Inbox:      d.deps.Inbox,
		Health:     d.Health,
		Quit: func() {
			d.logger.Info("quit requested over IPC")
			cancel()
		},
	}
	srv := NewIPCServer(d.opts.SocketPath, dispatcher, d.logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer srv.Stop()

	d.logger.Info("daemon started",
		"socket", d.opts.SocketPath,
		"compositor", d.deps.Compositor().Name(),
		"cells", d.deps.Registry.List(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.publishState(gctx) })
	if d.opts.HealthFile != "" {
		g.Go(func() error { return d.healthLoop(gctx) })
	}
	for _, task := range d.deps.Tasks {
		g.Go(func() error { return task(gctx) })
	}

	err := g.Wait()
	d.cleanup()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	d.logger.Info("daemon stopped", "error", err)
	return err
}

// Health reports the daemon and every registered cell.
func (d *Daemon) Health() *HealthStatus {
	notes := NotificationHealth{}
	if d.deps.Inbox != nil {
		notes.Pending = d.deps.Inbox.PendingCount()
		notes.DND = d.deps.Inbox.DND()
	}
	if d.deps.Serving != nil {
		notes.Serving = d.deps.Serving()
	}
	return NewHealthStatus(d.started, d.now(), d.deps.Compositor().Name(), d.deps.Registry.AllStatus(), notes)
}

// publishState keeps the engine subscribed and mirrors every change into
// the state file.
func (d *Daemon) publishState(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := d.deps.Engine.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			d.writeState()
		}
	}
}

func (d *Daemon) writeState() {
	if d.state == nil {
		return
	}
	st := d.deps.Engine.Snapshot()
	wrote, err := d.state.Write(st)
	if err != nil {
		d.logger.Warn("write state file", "error", err)
		return
	}
	if wrote {
		d.logger.Debug("state changed", "severity", st.Severity, "summary", st.Summary)
	}
}

func (d *Daemon) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.HealthInterval)
	defer ticker.Stop()

	d.writeHealth()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.writeHealth()
		}
	}
}

func (d *Daemon) writeHealth() {
	if err := WriteHealthFile(d.opts.HealthFile, d.Health()); err != nil {
		d.logger.Warn("write health file", "error", err)
	}
}

func (d *Daemon) cleanup() {
	if d.state != nil {
		if err := d.state.Remove(); err != nil {
			d.logger.Warn("remove state file", "error", err)
		}
	}
	if d.opts.HealthFile != "" {
		if err := removeIfExists(d.opts.HealthFile); err != nil {
			d.logger.Warn("remove health file", "error", err)
		}
	}
}
