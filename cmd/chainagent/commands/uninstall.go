package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/cliutil"
	"github.com/nfgraph/nfgraph/internal/install"
)

var (
	uninstallInterface string
	uninstallForce     bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Detach the XDP program currently attached to an interface",
	Long: `uninstall clears IFLA_XDP_FD on --interface, the out-of-process
teardown path for when the chainagent run process that installed the
chain is gone but the kernel program is still attached. It
prompts for confirmation unless --force is set.`,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallInterface, "interface", "", "network interface to detach the XDP program from")
	uninstallCmd.Flags().BoolVarP(&uninstallForce, "force", "f", false, "skip the confirmation prompt")
	_ = uninstallCmd.MarkFlagRequired("interface")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	ok, err := cliutil.ConfirmWithForce(fmt.Sprintf("detach the XDP program from %s?", uninstallInterface), uninstallForce)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted: %s not touched", uninstallInterface)
	}

	if err := install.Uninstall(uninstallInterface); err != nil {
		return fmt.Errorf("uninstall: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "detached xdp program from %s\n", uninstallInterface)
	return nil
}
