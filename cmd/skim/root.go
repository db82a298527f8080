package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath string

	rootCmd = &cobra.Command{
		Use:   "skim",
		Short: "Cloud waste detection engine",
		Long: `Skim - Cloud Waste Detection Engine

Skim inventories cloud resources, checks their utilisation against a
declarative rule catalogue and turns confirmed waste into priced,
confidence-scored findings. Findings live across scans: they open when
waste appears, update while it persists and close when it is fixed.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "skim.yaml", "Path to configuration file")
	rootCmd.SetVersionTemplate(`Skim {{.Version}} - Cloud Waste Detection Engine
`)
}
