package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sitescrape.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitescrape",
		Short: "Harvest the visible text of websites",
		Long: `sitescrape crawls websites from their base URL, follows links that stay
within the site, and stores the visible text of every page.

For each site two files are written: complete/<id><name> with the text of
every page, and unique_only/<id><name> with each piece of text only on the
first page it appeared on. Sites that fail are listed in failed.log.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewFailuresCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
