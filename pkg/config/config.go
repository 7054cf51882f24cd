package config

// Config is the root of config.toml.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Compositor CompositorConfig `toml:"compositor"`
	Aggregate  AggregateConfig  `toml:"aggregate"`
	Sources    SourcesConfig    `toml:"sources"`
	Daemon     DaemonConfig     `toml:"daemon"`
}

// GeneralConfig holds process-wide settings.
type GeneralConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// LogFile, when set, receives a copy of every log line.
	LogFile string `toml:"log_file"`
}

// CompositorConfig selects the window manager backend.
type CompositorConfig struct {
	// Backend is auto, hyprland, niri or fallback.
	Backend          string   `toml:"backend"`
	NiriPollInterval Duration `toml:"niri_poll_interval"`
}

// AggregateConfig tunes the aggregation engine.
type AggregateConfig struct {
	Interval     Duration `toml:"interval"`
	IconPriority []string `toml:"icon_priority"`
}

// SourcesConfig groups the per-source sections.
type SourcesConfig struct {
	IdleInhibit   IdleInhibitConfig   `toml:"idle_inhibit"`
	Media         MediaConfig         `toml:"media"`
	Network       NetworkConfig       `toml:"network"`
	Updates       UpdatesConfig       `toml:"updates"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// IdleInhibitConfig configures the idle-inhibit source.
type IdleInhibitConfig struct {
	Enabled      bool     `toml:"enabled"`
	Interval     Duration `toml:"interval"`
	CaffeineUnit string   `toml:"caffeine_unit"`
}

// MediaConfig configures the media source.
type MediaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// NetworkConfig configures the network source.
type NetworkConfig struct {
	Enabled         bool     `toml:"enabled"`
	Interval        Duration `toml:"interval"`
	Tailscale       bool     `toml:"tailscale"`
	TailscaleSocket string   `toml:"tailscale_socket"`
}

// UpdatesConfig configures the updates source.
type UpdatesConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Timeout  Duration `toml:"timeout"`
	// Command is run through `bash -lc` and must print a waybar-style JSON
	// object.
	Command string `toml:"command"`
}

// NotificationsConfig configures the notification inbox and its source.
type NotificationsConfig struct {
	Enabled bool `toml:"enabled"`
	// Serve claims org.freedesktop.Notifications on the session bus.
	Serve     bool `toml:"serve"`
	Threshold int  `toml:"threshold"`
	Capacity  int  `toml:"capacity"`
}

// DaemonConfig holds runtime file locations.
type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
	PIDFile    string `toml:"pid_file"`
	StateFile  string `toml:"state_file"`
	HealthFile string `toml:"health_file"`
	// HealthInterval is how often the health file is rewritten.
	HealthInterval Duration `toml:"health_interval"`
}
