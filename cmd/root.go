// Package cmd wires the statebar command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/config"
	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/output"
)

// ipcTimeout bounds one request to the daemon.
const ipcTimeout = 3 * time.Second

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
}

// NewRootCmd returns the statebar command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "statebar",
		Short: "Desktop status aggregation for bars and overlays",
		Long: `statebar polls idle inhibitors, media, network, pending updates and
notifications, merges them into one ranked state and serves it over a
unix socket, a JSON state file and waybar output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config.toml (default: XDG search path)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newDaemonCmd(g),
		newStateCmd(g),
		newWaybarCmd(g),
		newWatchCmd(g),
		newWorkspacesCmd(g),
		newCtlCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "statebar: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig honours --config, falling back to the search path. It returns
// the file actually used, or "" when defaults apply.
func (g *globals) loadConfig() (*config.Config, string, error) {
	if g.configPath != "" {
		cfg, err := config.LoadFromFile(g.configPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, g.configPath, nil
	}
	return config.Load()
}

// newLogger writes text logs to stderr and, when configured, to the log
// file as well. The returned closer releases the file.
func (g *globals) newLogger(cfg *config.Config, level *slog.LevelVar) (*slog.Logger, func(), error) {
	lvl, err := config.ParseLogLevel(cfg.General.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if g.verbose {
		lvl = slog.LevelDebug
	}
	level.Set(lvl)

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// checkInterval rejects a non-positive duration flag.
func checkInterval(flag string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--%s must be positive, got %s", flag, d)
	}
	return nil
}

// call sends one command to the daemon named by cfg.
func call(ctx context.Context, cfg *config.Config, command string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, ipcTimeout)
	defer cancel()
	return daemon.NewIPCClient(cfg.Daemon.SocketPath).Call(ctx, command, v)
}

// isRemote reports whether err came from a daemon that answered.
func isRemote(err error) bool {
	var remote *daemon.RemoteError
	return errors.As(err, &remote)
}

// resolveFormat parses --format, defaulting to text on a terminal and
// JSON otherwise.
func resolveFormat(flag string, out io.Writer) (output.Format, error) {
	if flag != "" {
		return output.ParseFormat(flag)
	}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return output.FormatText, nil
	}
	return output.FormatJSON, nil
}
