package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/config"
	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/output"
	"gitlab.com/tinyland/lab/statebar/pkg/service"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// staleAfter is how old the state file may be before it is not trusted.
const staleAfter = time.Minute

func newStateCmd(g *globals) *cobra.Command {
	var (
		format string
		local  bool
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the aggregated state",
		Long: `Prints the current aggregated state. The running daemon is asked first,
then its state file is read. With --local every source is polled once in
this process instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := resolveFormat(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}

			var st state.AggregatedState
			if local {
				logger, closeLog, lerr := g.newLogger(cfg, new(slog.LevelVar))
				if lerr != nil {
					return lerr
				}
				defer closeLog()
				st, err = localState(cmd.Context(), cfg, service.Options{Logger: logger})
			} else {
				st, err = currentState(cmd.Context(), cfg, time.Now())
			}
			if err != nil {
				return err
			}
			return output.Encode(cmd.OutOrStdout(), f, st)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml, text or waybar (default: text on a terminal, json otherwise)")
	cmd.Flags().BoolVar(&local, "local", false, "poll every source once without a daemon")
	return cmd
}

// currentState asks the daemon, then falls back to a fresh state file.
func currentState(ctx context.Context, cfg *config.Config, now time.Time) (state.AggregatedState, error) {
	var st state.AggregatedState
	err := call(ctx, cfg, "STATE", &st)
	if err == nil || isRemote(err) {
		return st, err
	}
	entry, ferr := daemon.ReadStateFile(cfg.Daemon.StateFile)
	if ferr != nil {
		return st, fmt.Errorf("daemon not reachable (%v) and no state file; start `statebar daemon` or use --local", err)
	}
	if entry.IsStale(now, staleAfter) {
		return st, fmt.Errorf("daemon not reachable and state file is older than %s", staleAfter)
	}
	return entry.State, nil
}

// localState builds the sources in-process and runs one tick of each. A
// source whose tick fails contributes nothing and is logged at debug level.
func localState(ctx context.Context, cfg *config.Config, opts service.Options) (state.AggregatedState, error) {
	local := *cfg
	local.Sources.Notifications.Serve = false
	svc, err := service.New(&local, opts)
	if err != nil {
		return state.AggregatedState{}, err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Sources.Updates.Timeout.Duration+ipcTimeout)
	defer cancel()
	if err := svc.Registry.RefreshAll(ctx); err != nil && opts.Logger != nil {
		opts.Logger.Debug("some sources failed to refresh", "error", err)
	}
	return svc.Engine.Compute(), nil
}
