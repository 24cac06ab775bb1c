// Command copilot is a terminal client for the research-assistant backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Terminal chat client for the research assistant",
		Long: `copilot: ask questions about your documents from the terminal.

Usage modes:
  copilot              Start the interactive chat
  copilot <command>    Run a single command (see below)

Log in once with 'copilot login google' or 'copilot login github';
the session is kept in ~/.copilot until you log out.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context())
		},
	}
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.copilot/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(
		askCmd(),
		uploadCmd(),
		whoamiCmd(),
		loginCmd(),
		logoutCmd(),
		historyCmd(),
		mcpCmd(),
	)
	return rootCmd
}
