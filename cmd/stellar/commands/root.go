// Package commands implements the stellar command line.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "stellar",
	Short: "Stellar - modular action server",
	Long: `Stellar boots a node from its configuration, loads the builtin and module
satellites and serves actions over the enabled transports.

Use "stellar [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// NewRootCmd returns the root command, for tests.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $STELLAR_CONFIG or config/stellar.yaml)")
	rootCmd.AddCommand(startCmd, actionsCmd, versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// configPath resolves the config file: the flag, then STELLAR_CONFIG, then
// config/stellar.yaml.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("STELLAR_CONFIG"); env != "" {
		return env
	}
	return filepath.Join("config", "stellar.yaml")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("stellar %s (commit: %s)\n", Version, Commit)
	},
}
