// Package poll provides Cell, a timer-driven reactive value. A cell starts
// producing when it gets its first subscriber, fans every successful tick out
// to all subscribers, and contains producer failures: a failing tick keeps the
// previous value and never stops later ticks.
package poll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Option configures a Cell.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	timeout   time.Duration
	immediate bool
}

// WithLogger sets the logger used for tick failures. Defaults to a discard
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout bounds a single producer call. Zero means no bound beyond the
// cell's lifetime.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithoutImmediateTick makes the cell wait one full interval before its first
// tick instead of producing as soon as it starts.
func WithoutImmediateTick() Option {
	return func(o *options) { o.immediate = false }
}

type subscriber struct {
	fn      func()
	removed atomic.Bool
}

// Cell holds the latest value of a Producer. It is safe for concurrent use.
type Cell[T any] struct {
	name     string
	interval time.Duration
	producer Producer[T]
	opts     options

	// tickMu keeps ticks strictly sequential, including Refresh calls and a
	// loop that is still finishing after a stop/restart cycle.
	tickMu sync.Mutex

	mu     sync.RWMutex
	value  T
	subs   []*subscriber
	stop   context.CancelFunc
	status Status
}

// New creates a cell that reports initial until its first successful tick.
// The cell does nothing until Subscribe is called.
func New[T any](name string, initial T, interval time.Duration, producer Producer[T], opts ...Option) *Cell[T] {
	o := options{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		immediate: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cell[T]{
		name:     name,
		interval: interval,
		producer: producer,
		opts:     o,
		value:    initial,
		status: Status{
			Name:     name,
			Interval: interval,
			Healthy:  true,
		},
	}
}

// Name returns the cell's identifier.
func (c *Cell[T]) Name() string { return c.name }

// Interval returns the tick period. Zero or negative means the cell only
// updates through Refresh.
func (c *Cell[T]) Interval() time.Duration { return c.interval }

// Get returns the latest stored value. It has no side effects.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Status returns a copy of the cell's runtime status.
func (c *Cell[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	s.Subscribers = len(c.subs)
	s.Running = c.stop != nil
	return s
}

// Subscribe registers fn to be called after every successful tick. The first
// subscriber starts the cell's ticker. The returned function removes exactly
// this registration; calling it more than once is harmless.
func (c *Cell[T]) Subscribe(fn func()) (unsubscribe func()) {
	sub := &subscriber{fn: fn}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	if c.stop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.stop = cancel
		go c.loop(ctx)
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(sub) })
	}
}

func (c *Cell[T]) remove(sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub.removed.Store(true)
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			break
		}
	}
	if len(c.subs) == 0 && c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Refresh runs one tick synchronously and returns the producer error, if
// any. Subscribers are notified exactly as for a timer tick.
func (c *Cell[T]) Refresh(ctx context.Context) error {
	return c.tick(ctx)
}

func (c *Cell[T]) loop(ctx context.Context) {
	if c.opts.immediate {
		_ = c.tick(ctx)
	}
	if c.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.tick(ctx)
		}
	}
}

func (c *Cell[T]) tick(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	v, err := c.produce(ctx)
	latency := time.Since(start)

	c.mu.Lock()
	wasHealthy := c.status.Healthy
	c.status.LastRun = start
	c.status.LastLatency = latency
	c.status.RunCount++
	if err != nil {
		c.status.ErrorCount++
		c.status.LastError = err
		c.status.Healthy = false
	} else {
		c.value = v
		c.status.LastError = nil
		c.status.Healthy = true
	}
	subs := make([]*subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	if err != nil {
		if wasHealthy {
			c.opts.logger.Warn("poll tick failed, keeping previous value", "cell", c.name, "error", err)
		} else {
			c.opts.logger.Debug("poll tick still failing", "cell", c.name, "error", err)
		}
		return err
	}
	if !wasHealthy {
		c.opts.logger.Info("poll cell recovered", "cell", c.name)
	}

	for _, s := range subs {
		c.notify(s)
	}
	return nil
}

func (c *Cell[T]) produce(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}
	return c.producer.Produce(ctx)
}

func (c *Cell[T]) notify(s *subscriber) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.logger.Error("poll subscriber panicked", "cell", c.name, "panic", r)
		}
	}()
	if s.removed.Load() {
		return
	}
	s.fn()
}
