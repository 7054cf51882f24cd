package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/service"
)

func newDaemonCmd(g *globals) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the aggregation daemon",
		Long: `Starts every enabled source, the aggregation engine and the IPC socket.
The state file is rewritten whenever the aggregated state changes and the
config file is reloaded when it is edited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := g.loadConfig()
			if err != nil {
				return err
			}
			var level slog.LevelVar
			logger, closeLog, err := g.newLogger(cfg, &level)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(cfg, service.Options{Logger: logger, Level: &level})
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.ServeNotifications(ctx); err != nil {
				logger.Warn("notification server unavailable", "error", err)
			}

			if noWatch {
				path = ""
			}
			d, err := svc.Daemon(path)
			if err != nil {
				return err
			}
			logger.Info("starting statebar daemon", "version", service.Version, "config", path)
			return d.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}
