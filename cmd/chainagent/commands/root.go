// Package commands implements the chainagent CLI command tree,
// mirroring cmd/chaind/commands's shape: a root cobra.Command with a
// persistent --config flag and one subcommand per file in this
// package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/logger"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "chainagent",
	Short: "chainagent installs a compiled NF chain and runs its dataplane",
	Long: `chainagent requests a compiled chain bundle from chaind over the wire
protocol, installs each NF's in-kernel program and side tables, binds
one AF_XDP socket per configured core, loads every user-space NF's
dynamic library, and runs the hot-path executor until shutdown.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfgraph/config.yaml)")
	rootCmd.AddCommand(runCmd)
}

// GetConfigFile returns the --config flag's value.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger wires a loaded config's logging section into the shared
// logger package, the same small adapter chaind's commands use.
func InitLogger(level, format, output string) error {
	return logger.Init(logger.Config{
		Level:  parseLevel(level),
		Format: logger.Format(format),
		Output: output,
	})
}

func parseLevel(s string) logger.Level {
	switch s {
	case "DEBUG", "debug":
		return logger.LevelDebug
	case "WARN", "warn":
		return logger.LevelWarn
	case "ERROR", "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
