package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
)

// Kind names a backend.
type Kind string

const (
	KindHyprland Kind = "hyprland"
	KindNiri     Kind = "niri"
	KindFallback Kind = "fallback"
	// KindAuto asks Detect to probe the environment.
	KindAuto Kind = "auto"
)

// ParseKind maps a configuration value to a Kind. The empty string is
// KindAuto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindHyprland, KindNiri, KindFallback:
		return k, nil
	}
	return KindAuto, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Options control detection and construction.
type Options struct {
	// Backend forces a backend; KindAuto (or "") probes the environment.
	Backend Kind
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Runner runs the niri CLI and the niri version probe.
	Runner poll.Runner
	// NiriPollInterval defaults to DefaultNiriPollInterval.
	NiriPollInterval time.Duration
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	if o.Backend == "" {
		o.Backend = KindAuto
	}
	return o
}

// Detect returns candidate backends in priority order, always ending with
// KindFallback. Environment markers are checked first; the niri CLI is only
// probed when no marker matched.
func Detect(ctx context.Context, opts Options) []Kind {
	opts = opts.withDefaults()
	getenv := opts.Getenv

	var kinds []Kind
	add := func(k Kind) {
		for _, existing := range kinds {
			if existing == k {
				return
			}
		}
		kinds = append(kinds, k)
	}

	if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		add(KindHyprland)
	}
	if desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP")); desktop != "" {
		if strings.Contains(desktop, "hyprland") {
			add(KindHyprland)
		}
		if strings.Contains(desktop, "niri") {
			add(KindNiri)
		}
	}
	if getenv("NIRI_SOCKET") != "" {
		add(KindNiri)
	}

	if len(kinds) == 0 {
		runner := opts.Runner
		if runner == nil {
			runner = poll.ExecRunner{}
		}
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := runner.Output(probeCtx, []string{"niri", "msg", "version"})
		cancel()
		if err == nil {
			add(KindNiri)
		}
	}

	if len(kinds) == 0 {
		if wl := getenv("WAYLAND_DISPLAY"); wl != "" {
			opts.Logger.Warn("running on Wayland but compositor not recognized", "display", wl)
		}
	}

	add(KindFallback)
	return kinds
}

// Factory constructs one backend.
type Factory func(opts Options) (Adapter, error)

// DefaultFactories builds the real adapters.
var DefaultFactories = map[Kind]Factory{
	KindHyprland: func(o Options) (Adapter, error) {
		return NewHyprland(WithHyprlandEnv(o.Getenv), WithHyprlandLogger(o.Logger))
	},
	KindNiri: func(o Options) (Adapter, error) {
		nopts := []NiriOption{WithNiriLogger(o.Logger), WithNiriPollInterval(o.NiriPollInterval)}
		if o.Runner != nil {
			nopts = append(nopts, WithNiriRunner(o.Runner))
		}
		return NewNiri(nopts...)
	},
	KindFallback: func(o Options) (Adapter, error) {
		return NewFallback(o.Logger), nil
	},
}

// Select constructs the first candidate that builds successfully.
// Constructor errors and panics move on to the next candidate; the fallback
// adapter terminates the chain, so Select never fails.
func Select(candidates []Kind, factories map[Kind]Factory, opts Options) Adapter {
	opts = opts.withDefaults()
	if factories == nil {
		factories = DefaultFactories
	}
	for _, k := range candidates {
		if k == KindFallback {
			break
		}
		factory, ok := factories[k]
		if !ok {
			opts.Logger.Warn("no constructor for compositor", "backend", k)
			continue
		}
		a, err := build(factory, opts)
		if err != nil {
			opts.Logger.Error("compositor adapter failed, trying next", "backend", k, "error", err)
			continue
		}
		opts.Logger.Info("compositor adapter initialized", "backend", a.Name())
		return a
	}
	opts.Logger.Info("compositor adapter initialized", "backend", KindFallback)
	return NewFallback(opts.Logger)
}

func build(factory Factory, opts Options) (a Adapter, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("constructor panic: %v", r)
		}
	}()
	a, err = factory(opts)
	if err == nil && a == nil {
		err = fmt.Errorf("constructor returned no adapter")
	}
	return a, err
}

// New resolves opts.Backend (probing when auto) and returns the adapter.
func New(ctx context.Context, opts Options) Adapter {
	return newWith(ctx, opts, DefaultFactories)
}

func newWith(ctx context.Context, opts Options, factories map[Kind]Factory) Adapter {
	opts = opts.withDefaults()
	var candidates []Kind
	switch opts.Backend {
	case KindAuto:
		candidates = Detect(ctx, opts)
	case KindFallback:
		candidates = []Kind{KindFallback}
	default:
		candidates = []Kind{opts.Backend, KindFallback}
	}
	return Select(candidates, factories, opts)
}

// Provider holds the process-wide adapter, built lazily exactly once.
type Provider struct {
	opts      Options
	factories map[Kind]Factory

	once    sync.Once
	adapter Adapter
}

// NewProvider returns a provider that builds its adapter on first use.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts, factories: DefaultFactories}
}

// Adapter returns the adapter, constructing it on the first call.
func (p *Provider) Adapter() Adapter {
	p.once.Do(func() {
		p.adapter = newWith(context.Background(), p.opts, p.factories)
	})
	return p.adapter
}

// Close releases the adapter if it was built. A closed provider never
// builds one afterwards.
func (p *Provider) Close() error {
	p.once.Do(func() {})
	if p.adapter == nil {
		return nil
	}
	return p.adapter.Close()
}
