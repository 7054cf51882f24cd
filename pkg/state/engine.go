package state

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// DefaultInterval is the aggregation cadence.
const DefaultInterval = 250 * time.Millisecond

// Source is a read-only view of one domain signal. Get must be a cheap
// snapshot read; the engine never asks a source to fetch.
type Source interface {
	Name() string
	Get() *signal.Signal
}

// subscribable is implemented by sources backed by a lazy poll cell. The
// engine holds a subscription on them while it is itself subscribed so their
// timers run.
type subscribable interface {
	Subscribe(fn func()) (unsubscribe func())
}

var _ Source = (*poll.Cell[*signal.Signal])(nil)

type funcSource struct {
	name string
	fn   func() *signal.Signal
}

func (s funcSource) Name() string        { return s.name }
func (s funcSource) Get() *signal.Signal { return s.fn() }

// SourceFunc adapts a synchronous function to Source. It suits sources
// derived on demand, such as the notification inbox.
func SourceFunc(name string, fn func() *signal.Signal) Source {
	return funcSource{name: name, fn: fn}
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	interval time.Duration
	priority []string
	logger   *slog.Logger
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithIconPriority sets the initial category priority list.
func WithIconPriority(p []string) EngineOption {
	return func(c *engineConfig) { c.priority = p }
}

// WithEngineLogger sets the logger passed to the derived cell.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Engine recomputes the AggregatedState on a fast cadence from source
// snapshots. It performs no I/O of its own.
type Engine struct {
	sources  []Source
	priority atomic.Pointer[[]string]
	cell     *poll.Cell[AggregatedState]

	mu       sync.Mutex
	subs     int
	releases []func()
}

// NewEngine builds an engine over sources, read in the given order. Source
// order is the tie-break for equal severities.
func NewEngine(sources []Source, opts ...EngineOption) *Engine {
	cfg := engineConfig{
		interval: DefaultInterval,
		priority: DefaultIconPriority,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{sources: append([]Source(nil), sources...)}
	e.SetIconPriority(cfg.priority)
	e.cell = poll.New("aggregate", Resolve(nil, nil), cfg.interval,
		poll.Func(e.Compute),
		poll.WithLogger(cfg.logger.With("component", "aggregate")),
	)
	return e
}

// Compute resolves the current source snapshots immediately.
func (e *Engine) Compute() AggregatedState {
	signals := make([]*signal.Signal, len(e.sources))
	for i, s := range e.sources {
		signals[i] = s.Get()
	}
	return Resolve(signals, e.IconPriority())
}

// Snapshot returns the state computed by the most recent tick.
func (e *Engine) Snapshot() AggregatedState {
	return e.cell.Get()
}

// Subscribe registers fn to run after every aggregation tick. Callbacks
// carry no payload; call Snapshot inside them. While the engine has
// subscribers it keeps every cell-backed source running.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	e.mu.Lock()
	e.subs++
	if e.subs == 1 {
		for _, s := range e.sources {
			if c, ok := s.(subscribable); ok {
				e.releases = append(e.releases, c.Subscribe(func() {}))
			}
		}
	}
	e.mu.Unlock()

	unsub := e.cell.Subscribe(fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			e.mu.Lock()
			defer e.mu.Unlock()
			e.subs--
			if e.subs == 0 {
				for _, release := range e.releases {
					release()
				}
				e.releases = nil
			}
		})
	}
}

// Refresh recomputes synchronously and notifies subscribers.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.cell.Refresh(ctx)
}

// Name identifies the derived cell.
func (e *Engine) Name() string { return e.cell.Name() }

// Status reports the derived cell's status.
func (e *Engine) Status() poll.Status { return e.cell.Status() }

// SetIconPriority swaps the category priority list. It takes effect on the
// next tick.
func (e *Engine) SetIconPriority(p []string) {
	cp := append([]string(nil), p...)
	e.priority.Store(&cp)
}

// IconPriority returns the current category priority list.
func (e *Engine) IconPriority() []string {
	return *e.priority.Load()
}

// Sources returns the engine's inputs in tie-break order.
func (e *Engine) Sources() []Source {
	return append([]Source(nil), e.sources...)
}

var _ poll.Tracked = (*Engine)(nil)
