package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonRun(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		PIDFile:        filepath.Join(dir, "d.pid"),
		SocketPath:     filepath.Join(dir, "d.sock"),
		StateFile:      filepath.Join(dir, "state.json"),
		HealthFile:     filepath.Join(dir, "health.json"),
		HealthInterval: 50 * time.Millisecond,
	}
	engine := state.NewEngine([]state.Source{
		state.SourceFunc("network", func() *signal.Signal {
			return &signal.Signal{Severity: signal.Error, Category: "network", Summary: "No network connection"}
		}),
	}, state.WithInterval(20*time.Millisecond))
	registry := poll.NewRegistry()
	if err := registry.Register(engine); err != nil {
		t.Fatal(err)
	}
	fallback := compositor.NewFallback(nil)

	taskStopped := make(chan struct{})
	d, err := New(opts, Deps{
		Engine:     engine,
		Registry:   registry,
		Compositor: func() compositor.Adapter { return fallback },
		Inbox:      notify.NewInbox(),
		Tasks: []func(context.Context) error{
			func(ctx context.Context) error {
				<-ctx.Done()
				close(taskStopped)
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	waitFor(t, "state file", func() bool {
		entry, err := ReadStateFile(opts.StateFile)
		return err == nil && entry.State.Severity == signal.Error
	})
	waitFor(t, "health file", func() bool {
		_, err := os.Stat(opts.HealthFile)
		return err == nil
	})

	client := NewIPCClient(opts.SocketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var st state.AggregatedState
	if err := client.Call(ctx, "STATE", &st); err != nil {
		t.Fatalf("STATE: %v", err)
	}
	if st.Summary != "No network connection" {
		t.Errorf("summary = %q", st.Summary)
	}

	var hs HealthStatus
	if err := client.Call(ctx, "HEALTH", &hs); err != nil {
		t.Fatalf("HEALTH: %v", err)
	}
	if hs.Compositor != "fallback" || len(hs.Cells) != 1 || hs.Cells[0].Name != "aggregate" {
		t.Errorf("health = %+v", hs)
	}

	if err := client.Call(ctx, "QUIT", nil); err != nil {
		t.Fatalf("QUIT: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop after QUIT")
	}
	<-taskStopped

	for _, path := range []string{opts.PIDFile, opts.SocketPath, opts.StateFile, opts.HealthFile} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s left behind", filepath.Base(path))
		}
	}
}

func TestNewRequiresPaths(t *testing.T) {
	if _, err := New(Options{}, Deps{}); err == nil {
		t.Error("expected an error without paths")
	}
}
