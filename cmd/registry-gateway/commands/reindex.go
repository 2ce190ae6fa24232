package commands

import (
	"github.com/spf13/cobra"

	"github.com/mcpgateway/registry/pkg/config"
)

// reindexCommand performs a full discovery-index rebuild (§4.5 "A full
// rebuild is supported") without starting the HTTP listeners, for use
// after a restore or a discovery-index schema change.
func reindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the discovery index from the repository layer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return WithExitCode(err, 1)
			}
			sys, err := buildSystem(cfg)
			if err != nil {
				return WithExitCode(err, 1)
			}
			defer sys.Close()

			if err := sys.api.RebuildIndex(cmd.Context()); err != nil {
				return WithExitCode(err, 1)
			}
			count, _ := sys.index.DocCount()
			cmd.Printf("reindex complete: %d documents\n", count)
			return nil
		},
	}
}
