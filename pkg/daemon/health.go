package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
)

// CellHealth is the on-disk form of one poll.Status.
type CellHealth struct {
	Name        string    `json:"name"`
	Interval    string    `json:"interval,omitempty"`
	Running     bool      `json:"running"`
	Subscribers int       `json:"subscribers"`
	Healthy     bool      `json:"healthy"`
	LastRun     time.Time `json:"last_run"`
	LastError   string    `json:"last_error,omitempty"`
	RunCount    int64     `json:"run_count"`
	ErrorCount  int64     `json:"error_count"`
	LastLatency string    `json:"last_latency"`
}

// NewCellHealth converts a cell status to its wire form.
func NewCellHealth(s poll.Status) CellHealth {
	h := CellHealth{
		Name:        s.Name,
		Running:     s.Running,
		Subscribers: s.Subscribers,
		Healthy:     s.Healthy,
		LastRun:     s.LastRun,
		RunCount:    s.RunCount,
		ErrorCount:  s.ErrorCount,
		LastLatency: s.LastLatency.String(),
	}
	if s.Interval > 0 {
		h.Interval = s.Interval.String()
	}
	if s.LastError != nil {
		h.LastError = s.LastError.Error()
	}
	return h
}

// NotificationHealth summarizes the inbox.
type NotificationHealth struct {
	Pending int  `json:"pending"`
	DND     bool `json:"dnd"`
	Serving bool `json:"serving"`
}

// HealthStatus is the daemon's self-report, written to the health file and
// returned by HEALTH.
type HealthStatus struct {
	PID           int                `json:"pid"`
	StartedAt     time.Time          `json:"started_at"`
	Uptime        string             `json:"uptime"`
	Compositor    string             `json:"compositor"`
	Healthy       bool               `json:"healthy"`
	Cells         []CellHealth       `json:"cells"`
	Notifications NotificationHealth `json:"notifications"`
}

// NewHealthStatus builds a report from cell statuses. The daemon is healthy
// when every cell is.
func NewHealthStatus(started time.Time, now time.Time, compositor string, cells []poll.Status, notes NotificationHealth) *HealthStatus {
	hs := &HealthStatus{
		PID:           os.Getpid(),
		StartedAt:     started,
		Uptime:        now.Sub(started).Truncate(time.Second).String(),
		Compositor:    compositor,
		Healthy:       true,
		Cells:         make([]CellHealth, 0, len(cells)),
		Notifications: notes,
	}
	for _, c := range cells {
		hs.Cells = append(hs.Cells, NewCellHealth(c))
		if !c.Healthy {
			hs.Healthy = false
		}
	}
	return hs
}

// WriteHealthFile writes the health status as indented JSON to path.
// The write is atomic: content goes to a temporary file first, then is
// renamed into place to prevent partial reads.
func WriteHealthFile(path string, status *HealthStatus) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create health directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write health file: %w", err)
	}
	return nil
}

// ReadHealthFile reads and parses the health status JSON from path.
func ReadHealthFile(path string) (*HealthStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}

	return &status, nil
}
