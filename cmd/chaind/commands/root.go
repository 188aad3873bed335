// Package commands implements the chaind CLI command tree: a root
// cobra.Command with a persistent --config flag and one subcommand per
// file in this package.
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
	Use:   "chaind",
	Short: "chaind compiles NF chains and serves them to agents",
	Long: `chaind parses a chain.toml description, analyzes each network
function's source, builds the typed link graph, compiles every NF's
in-kernel and user-space wrapper, and serves the resulting artifact
bundle to chainagent processes over the wire protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfgraph/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(schemaCmd)
}

// GetConfigFile returns the --config flag's value.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger wires a loaded config's logging section into the shared
// logger package.
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
