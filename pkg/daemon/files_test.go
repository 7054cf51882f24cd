package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// --- PID file ---

func TestAcquireReleasePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "statebar.pid")

	if err := AcquirePID(path); err != nil {
		t.Fatalf("AcquirePID: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	// Re-acquiring from the same process is allowed.
	if err := AcquirePID(path); err != nil {
		t.Errorf("re-acquire: %v", err)
	}

	if err := ReleasePID(path); err != nil {
		t.Fatalf("ReleasePID: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PID file still present after release")
	}
	if err := ReleasePID(path); err != nil {
		t.Errorf("releasing twice: %v", err)
	}
}

func TestAcquirePIDLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statebar.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatal(err)
	}
	err := AcquirePID(path)
	if !errors.Is(err, ErrRunning) {
		t.Fatalf("err = %v, want ErrRunning", err)
	}
}

func TestAcquirePIDStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statebar.pid")
	if err := os.WriteFile(path, []byte("999999999"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AcquirePID(path); err != nil {
		t.Fatalf("stale PID file should be replaced: %v", err)
	}
	if pid, _ := ReadPID(path); pid != os.Getpid() {
		t.Errorf("pid = %d", pid)
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("own process reported dead")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive PIDs are never alive")
	}
}

// --- State file ---

func sampleState(summary string) state.AggregatedState {
	return state.Resolve([]*signal.Signal{{
		Severity: signal.Warn,
		Category: "updates",
		Icon:     "U",
		Summary:  summary,
	}}, state.DefaultIconPriority)
}

func TestStateFileDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	sf := NewStateFile(path)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sf.now = func() time.Time { return fixed }

	changed, err := sf.Write(sampleState("3 updates"))
	if err != nil || !changed {
		t.Fatalf("first write: changed=%v err=%v", changed, err)
	}
	changed, err = sf.Write(sampleState("3 updates"))
	if err != nil || changed {
		t.Errorf("identical write: changed=%v err=%v", changed, err)
	}
	changed, err = sf.Write(sampleState("4 updates"))
	if err != nil || !changed {
		t.Errorf("new content: changed=%v err=%v", changed, err)
	}

	entry, err := ReadStateFile(path)
	if err != nil {
		t.Fatalf("ReadStateFile: %v", err)
	}
	if entry.State.Summary != "4 updates" || entry.State.Severity != signal.Warn {
		t.Errorf("state = %+v", entry.State)
	}
	if entry.Hash == "" || !entry.Timestamp.Equal(fixed) {
		t.Errorf("entry metadata = %q %v", entry.Hash, entry.Timestamp)
	}
	if entry.IsStale(fixed.Add(time.Second), time.Minute) {
		t.Error("fresh entry reported stale")
	}
	if !entry.IsStale(fixed.Add(2*time.Minute), time.Minute) {
		t.Error("old entry reported fresh")
	}
}

func TestStateFileRemoveResetsHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	sf := NewStateFile(path)
	if _, err := sf.Write(sampleState("x")); err != nil {
		t.Fatal(err)
	}
	if err := sf.Remove(); err != nil {
		t.Fatal(err)
	}
	changed, err := sf.Write(sampleState("x"))
	if err != nil || !changed {
		t.Errorf("write after remove: changed=%v err=%v", changed, err)
	}
}

// --- Health ---

func TestHealthStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cells := []poll.Status{
		{Name: "media", Healthy: true, Interval: 2 * time.Second, RunCount: 4},
		{Name: "updates", Healthy: false, LastError: errors.New("exit status 1"), ErrorCount: 1},
	}
	hs := NewHealthStatus(started, started.Add(90*time.Second), "niri", cells, NotificationHealth{Pending: 2})

	if hs.Healthy {
		t.Error("an unhealthy cell makes the daemon unhealthy")
	}
	if hs.Uptime != "1m30s" {
		t.Errorf("uptime = %q", hs.Uptime)
	}
	if len(hs.Cells) != 2 || hs.Cells[1].LastError != "exit status 1" || hs.Cells[0].Interval != "2s" {
		t.Errorf("cells = %+v", hs.Cells)
	}

	path := filepath.Join(t.TempDir(), "health.json")
	if err := WriteHealthFile(path, hs); err != nil {
		t.Fatalf("WriteHealthFile: %v", err)
	}
	got, err := ReadHealthFile(path)
	if err != nil {
		t.Fatalf("ReadHealthFile: %v", err)
	}
	if got.Compositor != "niri" || got.Notifications.Pending != 2 || got.Healthy {
		t.Errorf("read back %+v", got)
	}
}

func TestHealthStatusAllHealthy(t *testing.T) {
	now := time.Now()
	hs := NewHealthStatus(now, now, "fallback", []poll.Status{{Name: "a", Healthy: true}}, NotificationHealth{})
	if !hs.Healthy {
		t.Error("expected healthy")
	}
}
