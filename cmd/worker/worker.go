package worker

import (
	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/spf13/cobra"
)

// NewWorkerCmd returns the parent "worker" command. cfg is read at run time,
// after the root command has loaded it.
func NewWorkerCmd(cfg func() config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(newSyncCmd(cfg))

	return cmd
}
