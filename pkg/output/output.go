// Package output encodes the aggregated state for scripts, terminals and
// status bars.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// Format names an encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatText   Format = "text"
	FormatWaybar Format = "waybar"
)

// ErrUnknownFormat is returned for a format name that is not supported.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the accepted names.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatText, FormatWaybar}
}

// ParseFormat accepts a format name, case-insensitively. "yml" is an alias.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatText, FormatWaybar:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Encode writes st to w in format f.
func Encode(w io.Writer, f Format, st state.AggregatedState) error {
	switch f {
	case FormatText:
		_, err := io.WriteString(w, Text(st))
		return err
	case FormatWaybar:
		return writeJSONLine(w, Waybar(st))
	default:
		return EncodeValue(w, f, st)
	}
}

// EncodeValue writes any JSON- or YAML-serialisable value, for replies that
// have no text rendering of their own.
func EncodeValue(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Text renders st for a terminal: a headline, then one line per source.
//
//	WARN  󰏗 󰂚  3 updates available
//	  󰏗  3 updates available
//	  󰂚  2 notifications
func Text(st state.AggregatedState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s  %s  %s\n", strings.ToUpper(st.Severity.String()), strings.Join(state.Glyphs(st), " "), st.Summary)
	for _, l := range state.TooltipLines(st) {
		fmt.Fprintf(&b, "  %s  %s\n", l.Icon, l.Summary)
	}
	return b.String()
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
