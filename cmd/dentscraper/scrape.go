package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape and print the number of changed products",
		RunE:  runScrape,
	}
	addScrapeFlags(cmd)
	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	params, err := scrapeParams(cmd, a.cfg)
	if err != nil {
		return err
	}

	count, err := a.crawler.Run(ctx, params)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scraped and updated %d products\n", count)
	return nil
}
