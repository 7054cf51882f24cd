// Package config loads statebar's TOML configuration.
package config

import (
	"fmt"
	"time"
)

// Duration is a config interval or timeout. In TOML it is either a Go
// duration string ("250ms", "2s") or a bare integer number of milliseconds,
// the unit poll intervals are usually quoted in.
type Duration struct {
	time.Duration
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("negative duration %dms not allowed", v)
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	default:
		return fmt.Errorf("duration must be a string or integer milliseconds, got %T", v)
	}
}

// UnmarshalText parses a Go duration string; "" is zero.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q not allowed", text)
	}
	d.Duration = parsed
	return nil
}

// MarshalText writes the duration back as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
