package state

import (
	"fmt"
	"html"
	"strings"

	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// IdleGlyph is shown in place of the icon row when nothing needs attention.
const IdleGlyph = "󰒓"

// bulletGlyph stands in for signals without an icon of their own.
const bulletGlyph = "•"

// SeverityColor maps each severity to its pill colour (Catppuccin Mocha).
var SeverityColor = map[signal.Severity]string{
	signal.Idle:  "#a6e3a1",
	signal.Info:  "#89b4fa",
	signal.Warn:  "#f9e2af",
	signal.Error: "#f38ba8",
}

// TooltipLine is one row of the per-source tooltip.
type TooltipLine struct {
	Severity signal.Severity `json:"severity"`
	Color    string          `json:"color"`
	Icon     string          `json:"icon"`
	Summary  string          `json:"summary"`
}

// TooltipLines returns one line per active source, in source order.
func TooltipLines(st AggregatedState) []TooltipLine {
	lines := make([]TooltipLine, 0, len(st.Sources))
	for _, s := range st.Sources {
		if s == nil {
			continue
		}
		icon := s.Icon
		if icon == "" {
			icon = bulletGlyph
		}
		color, ok := SeverityColor[s.Severity]
		if !ok {
			color = SeverityColor[signal.Idle]
		}
		lines = append(lines, TooltipLine{
			Severity: s.Severity,
			Color:    color,
			Icon:     icon,
			Summary:  s.Summary,
		})
	}
	return lines
}

// Glyphs returns what the pill displays: the idle glyph at Idle severity,
// otherwise the ordered icon row, otherwise the primary icon.
func Glyphs(st AggregatedState) []string {
	switch {
	case st.Severity == signal.Idle:
		return []string{IdleGlyph}
	case len(st.Icons) > 0:
		return append([]string(nil), st.Icons...)
	case st.Icon != "":
		return []string{st.Icon}
	}
	return nil
}

// TooltipMarkup renders the tooltip as Pango markup, one coloured line per
// source, or AllClear when nothing is active.
func TooltipMarkup(st AggregatedState) string {
	lines := TooltipLines(st)
	if len(lines) == 0 {
		return AllClear
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, `<span foreground="%s">%s</span>  %s`, l.Color, l.Icon, html.EscapeString(l.Summary))
	}
	return b.String()
}

// TooltipText renders the tooltip without markup.
func TooltipText(st AggregatedState) string {
	lines := TooltipLines(st)
	if len(lines) == 0 {
		return AllClear
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Icon + "  " + l.Summary
	}
	return strings.Join(out, "\n")
}
