package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/sources"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// AppName names the config and runtime directories.
const AppName = "statebar"

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/statebar/config.toml
//  2. ~/.config/statebar/config.toml
//
// If no file exists, returns DefaultConfig() with env overrides applied.
func Load() (*Config, string, error) {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFromFile(p)
			return cfg, p, err
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, "", nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes TOML over DefaultConfig, applies environment
// overrides and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration with sensible defaults.
func DefaultConfig() *Config {
	runtime := RuntimeDir()

	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Compositor: CompositorConfig{
			Backend:          string(compositor.KindAuto),
			NiriPollInterval: Duration{compositor.DefaultNiriPollInterval},
		},
		Aggregate: AggregateConfig{
			Interval:     Duration{state.DefaultInterval},
			IconPriority: append([]string(nil), state.DefaultIconPriority...),
		},
		Sources: SourcesConfig{
			IdleInhibit: IdleInhibitConfig{
				Enabled:      true,
				Interval:     Duration{sources.IdleInhibitInterval},
				CaffeineUnit: sources.DefaultCaffeineUnit,
			},
			Media: MediaConfig{
				Enabled:  true,
				Interval: Duration{sources.MediaInterval},
			},
			Network: NetworkConfig{
				Enabled:   true,
				Interval:  Duration{sources.NetworkInterval},
				Tailscale: true,
			},
			Updates: UpdatesConfig{
				Enabled:  true,
				Interval: Duration{sources.UpdatesInterval},
				Timeout:  Duration{30 * time.Second},
				Command:  sources.DefaultUpdatesScript,
			},
			Notifications: NotificationsConfig{
				Enabled:   true,
				Serve:     true,
				Threshold: sources.DefaultNotificationThreshold,
				Capacity:  notify.DefaultCapacity,
			},
		},
		Daemon: DaemonConfig{
			SocketPath:     filepath.Join(runtime, "statebar.sock"),
			PIDFile:        filepath.Join(runtime, "statebar.pid"),
			StateFile:      filepath.Join(runtime, "state.json"),
			HealthFile:     filepath.Join(runtime, "health.json"),
			HealthInterval: Duration{10 * time.Second},
		},
	}
}

// applyEnvOverrides checks environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STATEBAR_COMPOSITOR"); v != "" {
		cfg.Compositor.Backend = v
	}
	if v := os.Getenv("STATEBAR_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv("STATEBAR_UPDATES_COMMAND"); v != "" {
		cfg.Sources.Updates.Command = v
	}
}

// SearchPaths returns the ordered list of config file paths to try.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string

	xdg := xdgConfigHome(home)
	paths = append(paths, filepath.Join(xdg, AppName, "config.toml"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		paths = append(paths, filepath.Join(defaultXDG, AppName, "config.toml"))
	}

	return paths
}

// RuntimeDir returns $XDG_RUNTIME_DIR/statebar, or a per-user directory
// under the system temp dir when the session has no runtime dir.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, AppName)
	}
	return filepath.Join(os.TempDir(), AppName+"-"+strconv.Itoa(os.Getuid()))
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}
