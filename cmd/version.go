package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/statebar/pkg/service"
)

// Build metadata, set with -ldflags.
var (
	Commit = "dev"
	Date   = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "statebar %s (%s) built %s %s/%s\n",
				service.Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
