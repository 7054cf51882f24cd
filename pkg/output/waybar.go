package output

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// WaybarLine is one update for a waybar custom module with
// "return-type": "json".
type WaybarLine struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Class   []string `json:"class"`
	Alt     string   `json:"alt"`
}

// Waybar converts st to a waybar line. Class carries the severity plus one
// "cat-<category>" entry per active source for CSS selectors; Alt is the
// severity for format-icons.
func Waybar(st state.AggregatedState) WaybarLine {
	sev := st.Severity.String()
	class := []string{sev}
	seen := map[string]bool{}
	for _, s := range st.Sources {
		if s == nil || s.Category == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		class = append(class, "cat-"+s.Category)
	}
	return WaybarLine{
		Text:    strings.Join(state.Glyphs(st), " "),
		Tooltip: state.TooltipMarkup(st),
		Class:   class,
		Alt:     sev,
	}
}

// WaybarWriter streams waybar lines, skipping a state whose line matches
// the previous one.
type WaybarWriter struct {
	w io.Writer

	mu   sync.Mutex
	last []byte
}

// NewWaybarWriter returns a writer emitting to w.
func NewWaybarWriter(w io.Writer) *WaybarWriter {
	return &WaybarWriter{w: w}
}

// Write emits st unless it renders identically to the last line. It reports
// whether a line was written.
func (ww *WaybarWriter) Write(st state.AggregatedState) (bool, error) {
	data, err := json.Marshal(Waybar(st))
	if err != nil {
		return false, err
	}

	ww.mu.Lock()
	defer ww.mu.Unlock()
	if bytes.Equal(data, ww.last) {
		return false, nil
	}
	if _, err := ww.w.Write(append(data, '\n')); err != nil {
		return false, err
	}
	ww.last = data
	return true, nil
}
