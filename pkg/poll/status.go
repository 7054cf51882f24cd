package poll

import (
	"encoding/json"
	"time"
)

// Status tracks the runtime state of a single cell. The cell updates it after
// every tick.
type Status struct {
	Name        string
	Interval    time.Duration
	Running     bool
	Subscribers int
	Healthy     bool
	LastRun     time.Time
	LastError   error
	RunCount    int64
	ErrorCount  int64
	LastLatency time.Duration
}

// MarshalJSON renders durations as strings and the error as its message.
func (s Status) MarshalJSON() ([]byte, error) {
	type wire struct {
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
	w := wire{
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
		w.Interval = s.Interval.String()
	}
	if s.LastError != nil {
		w.LastError = s.LastError.Error()
	}
	return json.Marshal(w)
}
