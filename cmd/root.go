package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"srmsync/config"
	"srmsync/internal/logging"
)

var (
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "srmsync",
	Short: "Bulk transfer tool for grid storage",
	Long: `srmsync mirrors directory trees and file lists from grid storage elements
onto local disk, resuming interrupted transfers based on file sizes.
Listing and copying are delegated to the grid tools (srmls, gfal-ls,
gfal-copy); their names can be overridden from a .env file or environment
variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := cfg.LogLevel
		if isVerbose(cmd) {
			level = "debug"
		}
		slog.SetDefault(logging.New("srmsync", level))
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(lfnListsCmd)

	rootCmd.PersistentFlags().String("srm", "", "SRM server with storage root (use lcg-infosites to get a list)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func getSRM(cmd *cobra.Command) string {
	srm, _ := cmd.Flags().GetString("srm")
	if srm != "" {
		return srm
	}
	return cfg.SRM
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
