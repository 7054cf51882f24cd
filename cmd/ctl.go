package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
)

func newCtlCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ctl <command> [args...]",
		Short: "Send a raw command to the daemon",
		Long: "Sends one line to the daemon socket and prints the JSON reply.\n\nCommands: " +
			strings.Join(daemon.Commands(), ", "),
		Example: `  statebar ctl dnd toggle
  statebar ctl switch 3
  statebar ctl dismiss all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), ipcTimeout)
			defer cancel()

			line := strings.Join(args, " ")
			client := daemon.NewIPCClient(cfg.Daemon.SocketPath)
			raw, err := client.SendCommand(ctx, line)
			if err != nil {
				return err
			}
			if err := daemon.ReplyError(raw); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(raw)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return err
		},
	}
}
