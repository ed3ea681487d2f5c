package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stravaaddon",
	Short: "Enrich Strava activity descriptions",
	Long:  `Polls authorized athletes for new activities and rewrites their descriptions with lap splits, location, and the weather at start time.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
