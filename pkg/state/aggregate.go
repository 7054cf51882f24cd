// Package state merges the latest signal of every domain source into one
// ranked AggregatedState. Resolve is a pure function; Engine wraps it in a
// fast derived poll cell that only reads source snapshots.
package state

import (
	"sort"

	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// AllClear is the summary reported when no source is active.
const AllClear = "All systems normal"

// DefaultIconPriority is the category order used to arrange icons when the
// configuration does not override it.
var DefaultIconPriority = []string{
	"notification",
	"audio",
	"mic",
	"caffeine",
	"external",
	"reboot",
	"updates",
}

// AggregatedState is the merged view of all sources at one instant.
type AggregatedState struct {
	Severity signal.Severity `json:"severity" yaml:"severity"`
	// Icon is the primary glyph; "" means none.
	Icon    string           `json:"icon" yaml:"icon"`
	Icons   []string         `json:"icons" yaml:"icons"`
	Summary string           `json:"summary" yaml:"summary"`
	Sources []*signal.Signal `json:"sources" yaml:"sources"`
}

// Idle reports whether nothing is active.
func (a AggregatedState) Idle() bool {
	return len(a.Sources) == 0
}

// Resolve merges signals into an AggregatedState. Nil entries are skipped.
// The top signal is the highest severity, first occurrence winning ties.
// Icons follow priority first, then any other active categories in input
// order, one icon per category.
func Resolve(signals []*signal.Signal, priority []string) AggregatedState {
	active := make([]*signal.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Active() {
			active = append(active, s)
		}
	}

	if len(active) == 0 {
		return AggregatedState{
			Severity: signal.Idle,
			Icons:    []string{},
			Summary:  AllClear,
			Sources:  []*signal.Signal{},
		}
	}

	ranked := make([]*signal.Signal, len(active))
	copy(ranked, active)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Severity.Rank() > ranked[j].Severity.Rank()
	})
	top := ranked[0]

	icons := make([]string, 0, len(active))
	used := make(map[string]bool, len(active))
	for _, category := range priority {
		if used[category] {
			continue
		}
		for _, s := range active {
			if s.Category == category && s.Icon != "" {
				icons = append(icons, s.Icon)
				used[category] = true
				break
			}
		}
	}
	for _, s := range active {
		if s.Icon != "" && !used[s.Category] {
			icons = append(icons, s.Icon)
			used[s.Category] = true
		}
	}

	icon := top.Icon
	if len(icons) > 0 {
		icon = icons[0]
	}

	return AggregatedState{
		Severity: top.Severity,
		Icon:     icon,
		Icons:    icons,
		Summary:  top.Summary,
		Sources:  active,
	}
}
