package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Scrape now and then on a fixed interval until interrupted",
		RunE:  runSchedule,
	}
	addScrapeFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Time between runs (default CRAWL_INTERVAL_MINUTES)")
	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
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

	interval := time.Duration(a.cfg.CrawlIntervalMinutes) * time.Minute
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		interval = v
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	a.log.Info("Crawler configured",
		zap.Duration("interval", interval),
		zap.Int("page_limit", params.PageLimit))

	// Blocks until the context is canceled
	a.crawler.StartScheduledRuns(ctx, interval, params)

	a.log.Info("Scheduled crawler shut down successfully")
	return nil
}
