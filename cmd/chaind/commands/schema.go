package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:       "schema {daemon|chain}",
	Short:     "Print the JSON Schema for the daemon config or a chain description",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"daemon", "chain"},
	RunE:      runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	kind := schema.Kind(args[0])
	out, err := schema.Generate(kind)
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
