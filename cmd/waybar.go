package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/config"
	"gitlab.com/tinyland/lab/statebar/pkg/output"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

func newWaybarCmd(g *globals) *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "waybar",
		Short: "Stream the state as a waybar custom module",
		Long: `Emits one JSON line per state change for a waybar custom module with
"return-type": "json". Identical consecutive states are not repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkInterval("interval", interval); err != nil {
				return err
			}
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			ww := output.NewWaybarWriter(cmd.OutOrStdout())
			if once {
				_, err := ww.Write(waybarState(cmd.Context(), cfg))
				return err
			}
			return streamWaybar(cmd.Context(), cfg, ww, interval)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "how often to ask the daemon")
	cmd.Flags().BoolVar(&once, "once", false, "print one line and exit")
	return cmd
}

func streamWaybar(ctx context.Context, cfg *config.Config, ww *output.WaybarWriter, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := ww.Write(waybarState(ctx, cfg)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// waybarState is the daemon's state, or an error pill when it cannot be
// reached so the bar shows why it is empty.
func waybarState(ctx context.Context, cfg *config.Config) state.AggregatedState {
	st, err := currentState(ctx, cfg, time.Now())
	if err == nil {
		return st
	}
	return state.Resolve([]*signal.Signal{{
		Severity: signal.Error,
		Category: "statebar",
		Icon:     "󰅚",
		Summary:  "statebar: " + err.Error(),
	}}, nil)
}
