// Package main implements presalectl, the operator CLI of the presale ledger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"presale-ledger/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "presalectl",
	Short:         "Operate a presale ledger deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnvFile(".env")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Getenv("PRESALE_CONFIG", "presale.yaml"), "Sale configuration file")
	rootCmd.AddCommand(configCmd, estimateCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
