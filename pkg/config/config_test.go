package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// --- Defaults ---

func TestDefaultConfigIsValid(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Aggregate.Interval.Duration != 250*time.Millisecond {
		t.Errorf("aggregate interval = %v, want 250ms", cfg.Aggregate.Interval)
	}
	if got := strings.Join(cfg.Aggregate.IconPriority, ","); got != strings.Join(state.DefaultIconPriority, ",") {
		t.Errorf("icon priority = %s", got)
	}
	if cfg.Daemon.SocketPath != "/run/user/1000/statebar/statebar.sock" {
		t.Errorf("socket path = %s", cfg.Daemon.SocketPath)
	}
	if cfg.Sources.Notifications.Threshold != 5 {
		t.Errorf("notification threshold = %d, want 5", cfg.Sources.Notifications.Threshold)
	}
}

func TestDefaultIconPriorityIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregate.IconPriority[0] = "changed"
	if state.DefaultIconPriority[0] == "changed" {
		t.Fatal("DefaultConfig shares the package-level priority slice")
	}
}

// --- Loading ---

func TestLoadFromReader(t *testing.T) {
	input := `
[general]
log_level = "debug"

[compositor]
backend = "niri"
niri_poll_interval = "500ms"

[aggregate]
icon_priority = ["mic", "notification"]

[sources.updates]
interval = "1m"
command = "/usr/local/bin/updates-json"

[sources.network]
tailscale = false
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.General.LogLevel)
	}
	if cfg.Compositor.Backend != "niri" || cfg.Compositor.NiriPollInterval.Duration != 500*time.Millisecond {
		t.Errorf("compositor = %+v", cfg.Compositor)
	}
	if len(cfg.Aggregate.IconPriority) != 2 {
		t.Errorf("icon priority = %v", cfg.Aggregate.IconPriority)
	}
	if cfg.Sources.Updates.Interval.Duration != time.Minute {
		t.Errorf("updates interval = %v", cfg.Sources.Updates.Interval)
	}
	if cfg.Sources.Network.Tailscale {
		t.Error("tailscale should be disabled")
	}
	if !cfg.Sources.Media.Enabled {
		t.Error("unset sections keep their defaults")
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[general]\nlog_levle = \"debug\"\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadFromReaderBadDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[aggregate]\ninterval = \"soon\"\n"))
	if err == nil {
		t.Fatal("expected an error for an unparsable duration")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.Compositor.Backend != "auto" {
		t.Errorf("backend = %q", cfg.Compositor.Backend)
	}
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "statebar", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[compositor]\nbackend = \"fallback\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, used, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Errorf("used %q, want %q", used, path)
	}
	if cfg.Compositor.Backend != "fallback" {
		t.Errorf("backend = %q", cfg.Compositor.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STATEBAR_COMPOSITOR", "hyprland")
	t.Setenv("STATEBAR_LOG_LEVEL", "warn")
	t.Setenv("STATEBAR_UPDATES_COMMAND", "checkupdates --json")

	cfg, err := LoadFromReader(strings.NewReader("[compositor]\nbackend = \"niri\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Compositor.Backend != "hyprland" {
		t.Errorf("env should override file: backend = %q", cfg.Compositor.Backend)
	}
	if cfg.General.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.General.LogLevel)
	}
	if cfg.Sources.Updates.Command != "checkupdates --json" {
		t.Errorf("updates command = %q", cfg.Sources.Updates.Command)
	}
}

// --- Validation ---

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.General.LogLevel = "loud" }, "general.log_level"},
		{"backend", func(c *Config) { c.Compositor.Backend = "sway" }, "compositor.backend"},
		{"interval", func(c *Config) { c.Sources.Media.Interval = Duration{time.Millisecond} }, "sources.media.interval"},
		{"duplicate priority", func(c *Config) { c.Aggregate.IconPriority = []string{"mic", "mic"} }, "duplicate"},
		{"empty priority", func(c *Config) { c.Aggregate.IconPriority = []string{" "} }, "empty category"},
		{"updates command", func(c *Config) { c.Sources.Updates.Command = "" }, "sources.updates.command"},
		{"threshold", func(c *Config) { c.Sources.Notifications.Threshold = -1 }, "threshold"},
		{"socket", func(c *Config) { c.Daemon.SocketPath = "" }, "daemon.socket_path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error does not wrap ErrInvalid: %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateDisabledUpdatesNeedsNoCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources.Updates.Enabled = false
	cfg.Sources.Updates.Command = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
		if _, err := ParseLogLevel(s); err != nil {
			t.Errorf("ParseLogLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Error("trace should be rejected")
	}
}

// --- Duration ---

func TestDurationRoundTrip(t *testing.T) {
	var holder struct {
		D Duration `toml:"d"`
	}
	if _, err := toml.Decode(`d = "1m30s"`, &holder); err != nil {
		t.Fatal(err)
	}
	if holder.D.Duration != 90*time.Second {
		t.Errorf("decoded %v", holder.D)
	}
	out, err := holder.D.MarshalText()
	if err != nil || string(out) != "1m30s" {
		t.Errorf("MarshalText = %q, %v", out, err)
	}

	var d Duration
	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("negative durations are rejected")
	}
}

func TestDurationIntegerMilliseconds(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("[sources.media]\ninterval = 2000\n\n[aggregate]\ninterval = \"250ms\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Sources.Media.Interval.Duration != 2*time.Second {
		t.Errorf("media interval = %v, want 2s", cfg.Sources.Media.Interval)
	}
	if cfg.Aggregate.Interval.Duration != 250*time.Millisecond {
		t.Errorf("aggregate interval = %v, want 250ms", cfg.Aggregate.Interval)
	}

	for _, doc := range []string{"d = -5", "d = 1.5", "d = true"} {
		var holder struct {
			D Duration `toml:"d"`
		}
		if _, err := toml.Decode(doc, &holder); err == nil {
			t.Errorf("%s: expected an error", doc)
		}
	}
}

// --- Watcher ---

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var level atomic.Value
	var reloads atomic.Int32
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) {
		level.Store(c.General.LogLevel)
		reloads.Add(1)
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// An invalid file is rejected and does not reach the callback.
	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"loud\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Fatalf("invalid config reached the callback %d times", n)
	}

	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("watcher never reloaded")
	}
	if got, _ := level.Load().(string); got != "debug" {
		t.Errorf("reloaded log level = %q, want debug", got)
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	var reloads atomic.Int32
	w, err := NewWatcher(path, 10*time.Millisecond, func(*Config) { reloads.Add(1) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done
	if n := reloads.Load(); n != 0 {
		t.Errorf("sibling file triggered %d reloads", n)
	}
}
