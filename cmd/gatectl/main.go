package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	serverAddr   string
	outputFormat string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Inspect and exercise the bearer-token gate",
		Long:          `gatectl issues and verifies tokens, explains route decisions and lints route policies using the same configuration file as the gate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("GATE_CONFIG")
	defaultServer := "http://localhost:8080"
	if env := os.Getenv("GATE_SERVER"); env != "" {
		defaultServer = env
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "Gate configuration file (env: GATE_CONFIG)")
	root.PersistentFlags().StringVar(&serverAddr, "server", defaultServer, "Gate base URL (env: GATE_SERVER)")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	root.AddCommand(tokenCmd())
	root.AddCommand(routesCmd())
	root.AddCommand(keysCmd())
	root.AddCommand(hashPasswordCmd())
	root.AddCommand(whoamiCmd())
	root.AddCommand(versionCmd())
	return root
}
