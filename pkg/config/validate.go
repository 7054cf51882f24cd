package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// minInterval keeps a misconfigured source from spinning.
const minInterval = 50 * time.Millisecond

// Validate reports every problem in cfg joined into one error.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := ParseLogLevel(c.General.LogLevel); err != nil {
		bad("general.log_level: %v", err)
	}
	if _, err := compositor.ParseKind(c.Compositor.Backend); err != nil {
		bad("compositor.backend: unknown backend %q", c.Compositor.Backend)
	}

	intervals := []struct {
		key string
		d   Duration
	}{
		{"compositor.niri_poll_interval", c.Compositor.NiriPollInterval},
		{"aggregate.interval", c.Aggregate.Interval},
		{"sources.idle_inhibit.interval", c.Sources.IdleInhibit.Interval},
		{"sources.media.interval", c.Sources.Media.Interval},
		{"sources.network.interval", c.Sources.Network.Interval},
		{"sources.updates.interval", c.Sources.Updates.Interval},
	}
	for _, iv := range intervals {
		if iv.d.Duration != 0 && iv.d.Duration < minInterval {
			bad("%s: %s is below %s", iv.key, iv.d.Duration, minInterval)
		}
	}

	seen := make(map[string]bool)
	for _, cat := range c.Aggregate.IconPriority {
		if strings.TrimSpace(cat) == "" {
			bad("aggregate.icon_priority: empty category")
			continue
		}
		if seen[cat] {
			bad("aggregate.icon_priority: duplicate category %q", cat)
		}
		seen[cat] = true
	}

	if c.Sources.Updates.Enabled && strings.TrimSpace(c.Sources.Updates.Command) == "" {
		bad("sources.updates.command: required when the source is enabled")
	}
	if c.Sources.Notifications.Threshold < 0 {
		bad("sources.notifications.threshold: must not be negative")
	}
	if c.Sources.Notifications.Capacity < 0 {
		bad("sources.notifications.capacity: must not be negative")
	}
	if c.Daemon.SocketPath == "" {
		bad("daemon.socket_path: required")
	}

	return errors.Join(errs...)
}

// ParseLogLevel maps debug, info, warn or error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
