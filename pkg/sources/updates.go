package sources

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// DefaultUpdatesScript is run through a login shell when no command is
// configured.
const DefaultUpdatesScript = "~/.config/statebar/scripts/updates.sh"

// UpdatesCommand wraps script in `bash -lc` so it sees the login
// environment. A leading ~/ is expanded.
func UpdatesCommand(script string) []string {
	if script == "" {
		script = DefaultUpdatesScript
	}
	if strings.HasPrefix(script, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			script = filepath.Join(home, script[2:])
		}
	}
	return []string{"bash", "-lc", script}
}

// NewUpdates returns the updates cell running argv every tick. A run that
// fails or prints invalid JSON keeps the previous signal; valid JSON that is
// not an object clears it.
func NewUpdates(argv []string, runner poll.Runner, opts ...Option) *Cell {
	p := poll.Command(argv, ParseUpdates)
	if runner != nil {
		p.Runner = runner
	}
	return newCell("updates", UpdatesInterval, p, opts)
}

// ParseUpdates normalizes one script payload. The "reboot" and "updates"
// classes are warnings; anything else is idle. A payload that is not an
// object yields a nil signal.
func ParseUpdates(stdout string) (*signal.Signal, error) {
	p, err := signal.ParsePayload([]byte(stdout))
	if errors.Is(err, signal.ErrNotObject) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sev := signal.Idle
	switch p.FirstClass() {
	case "reboot", "updates":
		sev = signal.Warn
	}
	s := signal.Normalize(p, signal.Options{Severity: sev})
	return &s, nil
}
