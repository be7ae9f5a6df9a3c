package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradykim7/dentscraper/internal/cache"
	"github.com/bradykim7/dentscraper/internal/crawler"
	"github.com/bradykim7/dentscraper/internal/crawler/sources"
	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/bradykim7/dentscraper/internal/notify"
	"github.com/bradykim7/dentscraper/internal/storage"
	"github.com/bradykim7/dentscraper/pkg/config"
	"github.com/bradykim7/dentscraper/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// discordMessageInterval spaces notification posts to stay under Discord's limits
const discordMessageInterval = 2 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dentscraper",
		Short:         "DentScraper - catalog scraper with change notifications",
		Long:          "Scrapes the Dental Stall catalog, records products whose price is new or changed and notifies an operator.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("env-file", "", "Path to an env file (default .env if present)")

	root.AddCommand(newServeCmd(), newScrapeCmd(), newScheduleCmd())
	return root
}

// app holds the process-wide components built from configuration
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	prefs       storage.PreferenceStore
	defaultPref models.NotificationPreference
	crawler     *crawler.Crawler
	closers     []func()
}

// newApp loads configuration and wires every component. close must be called
// when the returned app is no longer used.
func newApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New("dentscraper", logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	if err := a.wire(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	defaultPref, err := defaultPreference(cfg)
	if err != nil {
		return err
	}
	a.defaultPref = defaultPref

	var mongoDB *storage.MongoDB
	if cfg.MongoDBURI != "" {
		mongoDB, err = storage.NewMongoDB(cfg, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			if err := mongoDB.Disconnect(); err != nil {
				log.Error("Error disconnecting from MongoDB", zap.Error(err))
			}
		})
	}

	switch cfg.PreferenceStore {
	case config.StoreMongo:
		a.prefs = storage.NewPreferenceRepository(mongoDB, log)
	case config.StorePostgres:
		pg, err := storage.NewPostgresPreferenceStore(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		a.prefs = pg
	default:
		a.prefs = storage.NewMemoryPreferenceStore()
	}

	var sink storage.Sink = storage.NewProductFile(cfg.ProductsFile, log)
	if mongoDB != nil {
		archive := storage.NewProductRepository(mongoDB, log)
		if err := archive.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to set up product indexes", zap.Error(err))
		}
		sink = storage.NewMultiSink(log, sink, archive)
	}

	notifyOpts := notify.Options{Log: log}
	if cfg.DiscordToken != "" {
		discord, err := notify.NewDiscordSender(cfg.DiscordToken)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = discord.Close() })
		notifyOpts.DiscordSend = discord.Send
		notifyOpts.DiscordLimiter = rate.NewLimiter(rate.Every(discordMessageInterval), 1)
	}

	fetcherOpts := crawler.FetcherOptions{
		MaxAttempts:    cfg.FetchMaxAttempts,
		BaseDelay:      cfg.FetchBaseDelay,
		AttemptTimeout: cfg.FetchAttemptTimeout,
	}
	if cfg.RatePerSecond > 0 {
		fetcherOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.RateBurst, 1))
	}

	a.crawler, err = crawler.New(log, crawler.Options{
		Source:             sources.NewDentalStall(cfg.ShopBaseURL, log),
		Cache:              cache.New(cfg.CacheTTL),
		Sink:               sink,
		Preferences:        a.prefs,
		DefaultPreference:  defaultPref,
		Notify:             notifyOpts,
		Fetcher:            fetcherOpts,
		MaxConcurrentPages: cfg.MaxConcurrentPages,
		MaxPageLimit:       cfg.MaxPageLimit,
	})
	return err
}

// close releases components in reverse order of construction
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func defaultPreference(cfg *config.Config) (models.NotificationPreference, error) {
	channel, err := models.ParseNotificationChannel(cfg.DefaultNotificationType)
	if err != nil {
		return models.NotificationPreference{}, fmt.Errorf("DEFAULT_NOTIFICATION_TYPE: %w", err)
	}

	recipients := cfg.DefaultNotificationRecipients
	if recipients == nil {
		recipients = []string{}
	}
	return models.NotificationPreference{Channel: channel, Recipients: recipients}, nil
}

// scrapeParams reads --pages and --proxy, falling back to configuration
func scrapeParams(cmd *cobra.Command, cfg *config.Config) (models.ScrapeParameters, error) {
	params := models.ScrapeParameters{
		PageLimit: cfg.ScrapePageLimit,
		Proxy:     cfg.ScrapeProxy,
	}
	if cmd.Flags().Changed("pages") {
		params.PageLimit, _ = cmd.Flags().GetInt("pages")
	}
	if cmd.Flags().Changed("proxy") {
		params.Proxy, _ = cmd.Flags().GetString("proxy")
	}

	if err := params.ValidateLimit(cfg.MaxPageLimit); err != nil {
		return models.ScrapeParameters{}, errors.Join(errors.New("invalid scrape parameters"), err)
	}
	return params, nil
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("pages", 0, "Number of catalog pages to scrape (default SCRAPE_PAGE_LIMIT)")
	cmd.Flags().String("proxy", "", "Proxy URL for catalog requests (default SCRAPE_PROXY)")
}
