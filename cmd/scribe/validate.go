package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hivemind-hq/scribe/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration without starting the server",
	Long: `Validate loads the configuration file, applies defaults and
SCRIBE_* environment overrides, and reports the first problem found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}

		fmt.Println("✓ Configuration valid")
		fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
		fmt.Printf("  storage backend: %s\n", cfg.Storage.Backend)
		fmt.Printf("  classifier mode: %s\n", cfg.Classifier.Mode)
		fmt.Printf("  notify sink: %s\n", cfg.Notify.Sink)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
