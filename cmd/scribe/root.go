package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe - privacy-preserving sharing router",
	Long: `Scribe routes conversation turns into sharing spaces under
per-space disclosure policies.

Each space carries a policy describing what is relevant, what is vetoed,
how content is transformed before sharing, and when a disclosure needs the
author's explicit approval. The router classifies every turn against every
space the author belongs to and persists only the filtered result.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}
