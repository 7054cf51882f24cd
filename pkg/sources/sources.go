// Package sources builds the domain signal cells that feed the aggregation
// engine: idle inhibition, media activity, network, pending updates and the
// notification inbox. Every timed source is a poll.Cell over a small backend
// interface; the signal itself is derived by a pure function of the backend's
// observations.
package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// Default polling periods.
const (
	IdleInhibitInterval = 2 * time.Second
	MediaInterval       = 2 * time.Second
	NetworkInterval     = 3 * time.Second
	UpdatesInterval     = 5 * time.Second
)

// Cell is the type every timed source returns.
type Cell = poll.Cell[*signal.Signal]

// Option configures a source cell.
type Option func(*options)

type options struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// WithInterval overrides the source's default period.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithTimeout bounds one backend query. Defaults to the interval.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger handed to the cell.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newCell(name string, interval time.Duration, p poll.Producer[*signal.Signal], opts []Option) *Cell {
	o := options{interval: interval, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout == 0 {
		o.timeout = o.interval
	}
	return poll.New[*signal.Signal](name, nil, o.interval, p,
		poll.WithLogger(o.logger.With("source", name)),
		poll.WithTimeout(o.timeout),
	)
}

// getProperty reads one D-Bus property honouring ctx.
func getProperty(ctx context.Context, obj dbus.BusObject, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, iface, prop).Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("get %s.%s: %w", iface, prop, err)
	}
	return v, nil
}
