package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/cliutil"
	"github.com/nfgraph/nfgraph/internal/config"
	"github.com/nfgraph/nfgraph/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents known to this compiler's registry",
	Long: `agents opens the agent registry and prints every agent
that has ever sent a RequestChain message: its target triple, the hash
of the chain it last received, and when it last asked and was served.`,
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.Open(&registry.Config{
		Type: registry.DatabaseType(cfg.Registry.Type),
		Path: cfg.Registry.Path,
		Postgres: registry.PostgresConfig{
			Host:     cfg.Registry.Postgres.Host,
			Port:     cfg.Registry.Postgres.Port,
			Database: cfg.Registry.Postgres.Database,
			User:     cfg.Registry.Postgres.User,
			Password: cfg.Registry.Postgres.Password,
			SSLMode:  cfg.Registry.Postgres.SSLMode,
		},
	})
	if err != nil {
		return fmt.Errorf("open agent registry: %w", err)
	}
	defer reg.Close()

	recs, err := reg.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	table := cliutil.NewTableData("AGENT ID", "TARGET", "CHAIN HASH", "LAST REQUESTED", "LAST INSTALLED")
	for _, rec := range recs {
		table.AddRow(rec.AgentID, rec.TargetTriple, rec.ChainHash, rec.LastRequestedAt.Format("2006-01-02 15:04:05"), rec.LastInstalledAt.Format("2006-01-02 15:04:05"))
	}
	return cliutil.PrintTable(cmd.OutOrStdout(), table)
}
