package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/output"
)

func newWorkspacesCmd(g *globals) *cobra.Command {
	var (
		format string
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "workspaces [monitor]",
		Short: "List compositor workspaces",
		Long: `Lists the workspaces on monitor (default: the focused output) through the
daemon. With --follow the compositor is watched in this process and a new
listing is printed on every workspace change; JSON is one line per update.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := resolveFormat(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			monitor := ""
			if len(args) == 1 {
				monitor = args[0]
			}

			if follow {
				kind, err := compositor.ParseKind(cfg.Compositor.Backend)
				if err != nil {
					return err
				}
				logger, closeLog, err := g.newLogger(cfg, new(slog.LevelVar))
				if err != nil {
					return err
				}
				defer closeLog()
				provider := compositor.NewProvider(compositor.Options{
					Backend:          kind,
					NiriPollInterval: cfg.Compositor.NiriPollInterval.Duration,
					Logger:           logger,
				})
				defer provider.Close()
				return followWorkspaces(cmd.Context(), provider.Adapter(), monitor, cmd.OutOrStdout(), f, logger)
			}

			command := "WORKSPACES"
			if monitor != "" {
				command += " " + monitor
			}
			var reply daemon.WorkspacesReply
			if err := call(cmd.Context(), cfg, command, &reply); err != nil {
				return err
			}
			if f == output.FormatText {
				return writeWorkspaces(cmd.OutOrStdout(), reply)
			}
			return output.EncodeValue(cmd.OutOrStdout(), f, reply)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml or text")
	cmd.Flags().BoolVar(&follow, "follow", false, "watch the compositor and print every change")
	return cmd
}

// followWorkspaces prints the listing for monitor, then again after every
// workspace or focus event until ctx ends. Identical consecutive listings
// are printed once; a failed query skips that update.
func followWorkspaces(ctx context.Context, a compositor.Adapter, monitor string, w io.Writer, f output.Format, logger *slog.Logger) error {
	if !a.SupportsWorkspaces() {
		return fmt.Errorf("%s backend has no workspaces", a.Name())
	}

	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	disconnect := a.Connect(compositor.EventHandlers{
		WorkspacesChanged:       poke,
		FocusedWorkspaceChanged: poke,
	})
	defer disconnect()

	var last []byte
	emit := func() error {
		reply, err := daemon.QueryWorkspaces(ctx, a, monitor)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("workspace query failed", "error", err)
			}
			return nil
		}
		var buf bytes.Buffer
		if err := encodeFollow(&buf, f, reply); err != nil {
			return err
		}
		if bytes.Equal(buf.Bytes(), last) {
			return nil
		}
		last = append(last[:0], buf.Bytes()...)
		_, err = w.Write(buf.Bytes())
		return err
	}

	if err := emit(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := emit(); err != nil {
				return err
			}
		}
	}
}

// encodeFollow renders one streamed update: a JSON line, a YAML document or
// a text listing followed by a blank line.
func encodeFollow(w io.Writer, f output.Format, reply daemon.WorkspacesReply) error {
	switch f {
	case output.FormatText:
		if err := writeWorkspaces(w, reply); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	case output.FormatYAML:
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
		return output.EncodeValue(w, f, reply)
	default:
		return json.NewEncoder(w).Encode(reply)
	}
}

// writeWorkspaces lists one workspace per line, the focused one starred.
func writeWorkspaces(w io.Writer, reply daemon.WorkspacesReply) error {
	if !reply.Supported {
		_, err := fmt.Fprintf(w, "%s backend has no workspaces\n", reply.Backend)
		return err
	}
	for _, ws := range reply.Workspaces {
		mark := " "
		if reply.Focused != nil && reply.Focused.ID == ws.ID {
			mark = "*"
		}
		name := ws.Name
		if name == "" {
			name = fmt.Sprint(ws.ID)
		}
		if _, err := fmt.Fprintf(w, "%s %d\t%s\n", mark, ws.ID, name); err != nil {
			return err
		}
	}
	return nil
}
