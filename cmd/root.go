package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trusight/config"
	"trusight/logger"
)

// Set with -ldflags "-X trusight/cmd.version=...".
var (
	version = "dev"
	commit  = "none"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trusight",
	Short: "News bias analysis service",
	Long:  "trusight classifies the political leaning of news articles and keeps per-user analysis histories.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}
		return nil
	},
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(botCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trusight %s (commit: %s)\n", version, commit)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
