// Package cmd provides the CLI commands for the toolbridge relay.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolbridge/toolbridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toolbridge",
	Short: "A tool-call relay between providers and callers",
	Long: `toolbridge is a relay that brokers JSON-RPC tool traffic between
providers (which expose tool catalogues and execute calls) and callers
(which discover and invoke those tools), grouped into named sessions.

Peers attach over HTTP: a long-lived GET /events stream carries pushed
frames down, and POST /message carries messages up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default toolbridge.yaml in ., ~/.toolbridge, /etc/toolbridge)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
