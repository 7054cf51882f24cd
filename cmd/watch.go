package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/service"
	"gitlab.com/tinyland/lab/statebar/pkg/watch"
)

func newWatchCmd(g *globals) *cobra.Command {
	var (
		interval time.Duration
		local    bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Inspect the live state and cell health in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkInterval("interval", interval); err != nil {
				return err
			}
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if !local {
				client := daemon.NewIPCClient(cfg.Daemon.SocketPath)
				return watch.Run(ctx, watch.ClientBackend{Client: client}, interval)
			}

			inProcess := *cfg
			inProcess.Sources.Notifications.Serve = false
			svc, err := service.New(&inProcess, service.Options{})
			if err != nil {
				return err
			}
			defer svc.Close()
			unsubscribe := svc.Engine.Subscribe(func() {})
			defer unsubscribe()

			return watch.Run(ctx, watch.LocalBackend{
				Engine:   svc.Engine,
				Registry: svc.Registry,
				Inbox:    svc.Inbox,
			}, interval)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", watch.DefaultInterval, "refresh interval")
	cmd.Flags().BoolVar(&local, "local", false, "run the sources in this process instead of asking the daemon")
	return cmd
}
