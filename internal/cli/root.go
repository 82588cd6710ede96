package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "chartbot",
	Short: "Ticker chart bot for trading chat channels",
	Long: "chartbot answers ticker mentions with chart buttons, posts charts into per-user threads, " +
		"and cleans up everything it posted once the retention window passes.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "admin API URL (default: CHARTBOT_URL or the configured listen address)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(trackedCmd)
	rootCmd.AddCommand(runsCmd)
}
