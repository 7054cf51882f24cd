package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// IdleGlyph marks idle inhibition.
const IdleGlyph = "󰛊"

// DefaultCaffeineUnit is the user unit whose activity means "stay awake".
const DefaultCaffeineUnit = "caffeine-inhibit.service"

// Inhibitor is one logind inhibitor lock.
type Inhibitor struct {
	What string
	Who  string
	Why  string
	Mode string
	UID  uint32
	PID  uint32
}

// blocksIdle reports whether the lock prevents idling or sleep.
func (i Inhibitor) blocksIdle() bool {
	return i.Mode == "block" && (strings.Contains(i.What, "idle") || strings.Contains(i.What, "sleep"))
}

// IdleBackend answers the two questions the idle source asks each tick.
type IdleBackend interface {
	Inhibitors(ctx context.Context) ([]Inhibitor, error)
	CaffeineActive(ctx context.Context) (bool, error)
}

// NewIdleInhibit returns the idle-inhibit cell. An inhibitor query failure
// keeps the previous signal; a caffeine query failure counts as inactive.
func NewIdleInhibit(b IdleBackend, opts ...Option) *Cell {
	return newCell("idle_inhibit", IdleInhibitInterval, poll.FuncErr(func(ctx context.Context) (*signal.Signal, error) {
		locks, err := b.Inhibitors(ctx)
		if err != nil {
			return nil, err
		}
		caffeine, err := b.CaffeineActive(ctx)
		if err != nil {
			caffeine = false
		}
		return IdleSignal(locks, caffeine), nil
	}), opts)
}

// IdleSignal derives the idle-inhibit signal. Only block-mode locks on idle
// or sleep count.
func IdleSignal(locks []Inhibitor, caffeine bool) *signal.Signal {
	var blocking []Inhibitor
	for _, l := range locks {
		if l.blocksIdle() {
			blocking = append(blocking, l)
		}
	}

	sev, class := signal.Idle, "inactive"
	switch {
	case caffeine:
		sev, class = signal.Warn, "caffeine"
	case len(blocking) > 0:
		sev, class = signal.Warn, "external"
	}

	return &signal.Signal{
		Severity:   sev,
		Category:   class,
		Icon:       IdleGlyph,
		Summary:    inhibitorSummary(blocking),
		Contextual: true,
		Raw: map[string]any{
			"class":       class,
			"inhibitors":  len(blocking),
			"caffeine":    caffeine,
			"inhibitedBy": inhibitorNames(blocking),
		},
	}
}

func inhibitorName(who string) string {
	switch who {
	case "sway-audio-idle-inhibit":
		return "Audio"
	case "caffeine":
		return "Caffeine"
	}
	return who
}

func inhibitorNames(locks []Inhibitor) []string {
	names := make([]string, len(locks))
	for i, l := range locks {
		names[i] = inhibitorName(l.Who)
	}
	return names
}

func inhibitorSummary(locks []Inhibitor) string {
	names := inhibitorNames(locks)
	switch len(names) {
	case 0:
		return "No idle inhibitors active"
	case 1:
		return names[0] + " is prohibiting sleep"
	case 2:
		return names[0] + " and " + names[1] + " are prohibiting sleep"
	}
	last := names[len(names)-1]
	return strings.Join(names[:len(names)-1], ", ") + ", and " + last + " are prohibiting sleep"
}

const (
	logindDest  = "org.freedesktop.login1"
	logindPath  = dbus.ObjectPath("/org/freedesktop/login1")
	logindIface = "org.freedesktop.login1.Manager"
)

// SystemIdleBackend queries logind on the system bus and the caffeine unit
// through the user's systemd manager. Connections are opened lazily and
// dropped after a failure so the next tick reconnects.
type SystemIdleBackend struct {
	Unit string

	mu     sync.Mutex
	system *dbus.Conn
	user   *sdbus.Conn
}

// NewSystemIdleBackend returns a backend watching unit; empty means
// DefaultCaffeineUnit.
func NewSystemIdleBackend(unit string) *SystemIdleBackend {
	if unit == "" {
		unit = DefaultCaffeineUnit
	}
	return &SystemIdleBackend{Unit: unit}
}

// Inhibitors calls logind ListInhibitors.
func (b *SystemIdleBackend) Inhibitors(ctx context.Context) ([]Inhibitor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.system == nil {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("connect system bus: %w", err)
		}
		b.system = conn
	}

	var raw []struct {
		What, Who, Why, Mode string
		UID, PID             uint32
	}
	obj := b.system.Object(logindDest, logindPath)
	if err := obj.CallWithContext(ctx, logindIface+".ListInhibitors", 0).Store(&raw); err != nil {
		b.system.Close()
		b.system = nil
		return nil, fmt.Errorf("list inhibitors: %w", err)
	}
	out := make([]Inhibitor, len(raw))
	for i, r := range raw {
		out[i] = Inhibitor{What: r.What, Who: r.Who, Why: r.Why, Mode: r.Mode, UID: r.UID, PID: r.PID}
	}
	return out, nil
}

// CaffeineActive reports whether the caffeine unit's ActiveState is active.
func (b *SystemIdleBackend) CaffeineActive(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.user == nil {
		conn, err := sdbus.NewUserConnectionContext(ctx)
		if err != nil {
			return false, fmt.Errorf("connect user manager: %w", err)
		}
		b.user = conn
	}
	prop, err := b.user.GetUnitPropertyContext(ctx, b.Unit, "ActiveState")
	if err != nil {
		b.user.Close()
		b.user = nil
		return false, fmt.Errorf("%s state: %w", b.Unit, err)
	}
	state, _ := prop.Value.Value().(string)
	return state == "active", nil
}

// Close drops both bus connections.
func (b *SystemIdleBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.system != nil {
		err = b.system.Close()
		b.system = nil
	}
	if b.user != nil {
		b.user.Close()
		b.user = nil
	}
	return err
}
