// Package signal defines the canonical Signal record every domain source
// produces, the ordered Severity scale used to rank them, and the normalizer
// that turns waybar-style script output into a Signal.
package signal

import (
	"fmt"
	"strings"
)

// Severity is the ordered urgency of a Signal: Idle < Info < Warn < Error.
type Severity int

const (
	Idle Severity = iota
	Info
	Warn
	Error
)

var severityNames = [...]string{"idle", "info", "warn", "error"}

// Rank returns the numeric rank used for sorting (Error=3 ... Idle=0).
// Out-of-range values rank as Idle.
func (s Severity) Rank() int {
	if s < Idle || s > Error {
		return 0
	}
	return int(s)
}

// String returns the lowercase label ("idle", "info", "warn", "error").
func (s Severity) String() string {
	if s < Idle || s > Error {
		return severityNames[Idle]
	}
	return severityNames[s]
}

// ParseSeverity maps a label back to its Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle", "":
		return Idle, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error", "critical":
		return Error, nil
	}
	return Idle, fmt.Errorf("unknown severity %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Signal is one domain source's observation for a single tick. Sources build
// a fresh value every tick and never mutate it afterwards.
type Signal struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Category string   `json:"category" yaml:"category"`

	// Icon is a glyph; the empty string means "no icon".
	Icon    string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Summary string `json:"summary" yaml:"summary"`

	// Contextual keeps the signal in the active set even at Idle severity.
	Contextual bool `json:"contextual" yaml:"contextual"`

	// Raw carries source-specific detail for consumers; opaque here.
	Raw any `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// Active reports whether s takes part in aggregation: it must be non-nil and
// either above Idle or contextual.
func (s *Signal) Active() bool {
	return s != nil && (s.Severity != Idle || s.Contextual)
}
