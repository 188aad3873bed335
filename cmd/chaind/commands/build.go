package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/artifact"
	"github.com/nfgraph/nfgraph/internal/cliutil"
	"github.com/nfgraph/nfgraph/internal/compiler"
)

var (
	buildChainPath string
	buildTarget    string
	buildOutDir    string
	buildFnDir     string
	buildImportPfx string
	buildVmlinux   string
	buildYes       bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile a chain description for one target and write the bundle to disk",
	Long: `build runs the compiler pipeline once against a single chain.toml
and target triple, without starting the serve loop, and writes the
resulting artifact bundle to --out/bundle.bin.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildChainPath, "chain", "chain.toml", "path to the chain description to compile")
	buildCmd.Flags().StringVar(&buildTarget, "target", "x86_64-unknown-linux-gnu", "target triple to compile for")
	buildCmd.Flags().StringVar(&buildOutDir, "out", "build", "output directory for rendered sources, compiled objects, and the bundle")
	buildCmd.Flags().StringVar(&buildFnDir, "functions-dir", "functions", "root directory NF modules live under, by name")
	buildCmd.Flags().StringVar(&buildImportPfx, "import-base", "nfgraph/build/nf", "Go import path prefix rendered userspace wrappers import NF packages under")
	buildCmd.Flags().StringVar(&buildVmlinux, "vmlinux", "", "vmlinux/BTF override path for cross-compiling the target")
	buildCmd.Flags().BoolVarP(&buildYes, "yes", "y", false, "overwrite an existing --out directory without prompting")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := InitLogger("INFO", "text", "stderr"); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if existingBundle(buildOutDir) && !buildYes {
		ok, err := cliutil.Confirm(fmt.Sprintf("%s already contains a bundle.bin, overwrite?", buildOutDir), false)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted: %s not overwritten", buildOutDir)
		}
	}

	if err := os.MkdirAll(buildOutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	bundle, err := compiler.Compile(cmd.Context(), compiler.Options{
		ChainPath:   buildChainPath,
		FunctionDir: buildFnDir,
		OutDir:      buildOutDir,
		ImportBase:  buildImportPfx,
		Target:      compiler.Target{Triple: buildTarget, VmlinuxPath: buildVmlinux},
		Toolchain:   compiler.NewExecToolchain(),
	})
	if err != nil {
		return fmt.Errorf("compile chain: %w", err)
	}

	encoded, err := artifact.Encode(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	out := filepath.Join(buildOutDir, "bundle.bin")
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "compiled %d NFs, %d links -> %s\n", len(bundle.NFs), len(bundle.Links), out)
	return nil
}

func existingBundle(outDir string) bool {
	_, err := os.Stat(filepath.Join(outDir, "bundle.bin"))
	return err == nil
}
