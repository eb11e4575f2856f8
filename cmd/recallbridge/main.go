package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recallbridge",
		Short: "Dental recall SMS outreach",
		Long: "RecallBridge imports patient recall exports, builds an eligibility queue,\n" +
			"creates idempotent outreach touches, and drives them through the SMS\n" +
			"provider. The serve command exposes the provider webhook and a read-only\n" +
			"admin API.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newBuildQueueCmd())
	cmd.AddCommand(newCreateTouchesCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newResetErroredCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recallbridge %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
