package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "supplement-effects",
		Short: "Evaluates whether the supplements a user takes are actually doing anything",
		Long: `supplement-effects correlates daily check-ins with supplement intake,
classifies each supplement's effect and tracks it through trials and locked rules.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SUPPLEMENTS_CONFIG"), "path to a yaml config file")
	rootCmd.AddCommand(serveCmd, recomputeCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
