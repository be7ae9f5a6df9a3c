package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradykim7/dentscraper/internal/cache"
	"github.com/bradykim7/dentscraper/internal/crawler/sources"
	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/bradykim7/dentscraper/internal/notify"
	"github.com/bradykim7/dentscraper/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentPages = 8

// Options wires a Crawler to its collaborators
type Options struct {
	Source      sources.Source
	Cache       *cache.ChangeCache
	Sink        storage.Sink
	Preferences storage.PreferenceStore

	// DefaultPreference is used when the store holds nothing
	DefaultPreference models.NotificationPreference

	Notify notify.Options

	// Fetcher is the base configuration for each run's fetcher. The run's
	// proxy replaces Fetcher.Proxy.
	Fetcher FetcherOptions

	// MaxConcurrentPages caps in-flight page fetches per run
	MaxConcurrentPages int

	// MaxPageLimit is the largest page_limit a run accepts
	MaxPageLimit int
}

// Crawler runs the scrape, dedupe, persist and notify pipeline
type Crawler struct {
	source             sources.Source
	cache              *cache.ChangeCache
	sink               storage.Sink
	prefs              storage.PreferenceStore
	defaultPref        models.NotificationPreference
	notifyOpts         notify.Options
	fetcherOpts        FetcherOptions
	maxConcurrentPages int
	maxPageLimit       int
	log                *zap.Logger

	// prepareFetcher adjusts each run's fetcher before use
	prepareFetcher func(*Fetcher)

	stats      RunStats
	statsMutex sync.RWMutex
}

// RunStats tracks statistics about crawler operation
type RunStats struct {
	RunCount        int       `json:"run_count"`
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	PagesRequested  int       `json:"pages_requested"`
	PagesFailed     int       `json:"pages_failed"`
	ProductsScraped int       `json:"products_scraped"`
	ProductsChanged int       `json:"products_changed"`
	LastError       string    `json:"last_error,omitempty"`
}

// New creates a new crawler instance
func New(log *zap.Logger, opts Options) (*Crawler, error) {
	if opts.Source == nil {
		return nil, errors.New("crawler: source is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("crawler: cache is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("crawler: sink is required")
	}
	if opts.Preferences == nil {
		return nil, errors.New("crawler: preference store is required")
	}
	if opts.DefaultPreference.Channel == "" {
		opts.DefaultPreference = models.DefaultNotificationPreference()
	}
	if opts.MaxConcurrentPages <= 0 {
		opts.MaxConcurrentPages = defaultMaxConcurrentPages
	}
	if opts.MaxPageLimit <= 0 {
		opts.MaxPageLimit = models.DefaultMaxPageLimit
	}
	if opts.Notify.Log == nil {
		opts.Notify.Log = log
	}

	return &Crawler{
		source:             opts.Source,
		cache:              opts.Cache,
		sink:               opts.Sink,
		prefs:              opts.Preferences,
		defaultPref:        opts.DefaultPreference,
		notifyOpts:         opts.Notify,
		fetcherOpts:        opts.Fetcher,
		maxConcurrentPages: opts.MaxConcurrentPages,
		maxPageLimit:       opts.MaxPageLimit,
		log:                log.Named("crawler"),
	}, nil
}

// Run scrapes pages 1..params.PageLimit, keeps the products whose price is new
// or changed, appends them to the sink and notifies the operator. It returns
// the number of changed products.
//
// A page that cannot be fetched contributes no products. A sink failure is
// returned after the notification has been sent; a notification failure is
// logged only.
func (c *Crawler) Run(ctx context.Context, params models.ScrapeParameters) (int, error) {
	if err := params.ValidateLimit(c.maxPageLimit); err != nil {
		return 0, err
	}
	proxy, err := params.ProxyURL()
	if err != nil {
		return 0, err
	}

	c.log.Info("Starting crawler run",
		zap.String("source", c.source.Name()),
		zap.Int("page_limit", params.PageLimit),
		zap.Bool("proxy", proxy != nil))
	startTime := time.Now()

	pref := storage.ResolvePreference(ctx, c.prefs, c.defaultPref, c.log)
	notifier, err := notify.FromPreference(pref, c.notifyOpts)
	if err != nil {
		c.log.Warn("Invalid notification preference, using default", zap.Error(err))
		if notifier, err = notify.FromPreference(c.defaultPref, c.notifyOpts); err != nil {
			return 0, fmt.Errorf("failed to build notifier: %w", err)
		}
	}

	fetcherOpts := c.fetcherOpts
	fetcherOpts.Proxy = proxy
	fetcher := NewFetcher(c.log, fetcherOpts)
	defer fetcher.Close()
	if c.prepareFetcher != nil {
		c.prepareFetcher(fetcher)
	}

	scraped, failedPages := c.scrapePages(ctx, fetcher, params.PageLimit)
	if err := ctx.Err(); err != nil {
		c.recordRun(startTime, params.PageLimit, failedPages, len(scraped), 0, err)
		return 0, err
	}

	changed := c.cache.FilterChanged(scraped)
	c.log.Info("Filtered scraped products",
		zap.Int("scraped", len(scraped)),
		zap.Int("changed", len(changed)))

	sinkErr := c.sink.Append(ctx, changed)
	if sinkErr != nil {
		c.log.Error("Failed to save products", zap.Error(sinkErr))
	}

	message := fmt.Sprintf("%d products were scraped and updated in DB", len(changed))
	if err := notifier.Send(ctx, message); err != nil {
		c.log.Error("Failed to send notification",
			zap.String("channel", string(notifier.Channel())),
			zap.Error(err))
	}

	c.recordRun(startTime, params.PageLimit, failedPages, len(scraped), len(changed), sinkErr)

	c.log.Info("Crawler run completed",
		zap.Int("changed_products", len(changed)),
		zap.Int("failed_pages", failedPages),
		zap.Duration("duration", time.Since(startTime)))

	if sinkErr != nil {
		return len(changed), fmt.Errorf("failed to save products: %w", sinkErr)
	}
	return len(changed), nil
}

// scrapePages fetches and extracts every page with a bounded number in flight.
// Results are concatenated in page order.
func (c *Crawler) scrapePages(ctx context.Context, fetcher *Fetcher, pageLimit int) ([]models.Product, int) {
	results := make([][]models.Product, pageLimit)
	failed := make([]bool, pageLimit)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrentPages)

	for page := 1; page <= pageLimit; page++ {
		g.Go(func() error {
			products, err := c.scrapePage(gctx, fetcher, page)
			if err != nil {
				failed[page-1] = true
			}
			results[page-1] = products
			return nil
		})
	}
	_ = g.Wait()

	var all []models.Product
	failedPages := 0
	for i, products := range results {
		all = append(all, products...)
		if failed[i] {
			failedPages++
		}
	}
	if all == nil {
		all = []models.Product{}
	}
	return all, failedPages
}

// scrapePage fetches and extracts one page. A fetch failure yields no products.
func (c *Crawler) scrapePage(ctx context.Context, fetcher *Fetcher, page int) ([]models.Product, error) {
	url := c.source.PageURL(page)

	content, err := fetcher.Fetch(ctx, url)
	if err != nil {
		c.log.Warn("Skipping page",
			zap.String("source", c.source.Name()),
			zap.Int("page", page),
			zap.Error(err))
		return nil, err
	}

	products := c.source.Extract(content, page)
	c.log.Debug("Scraped page",
		zap.String("source", c.source.Name()),
		zap.Int("page", page),
		zap.Int("products", len(products)))
	return products, nil
}

func (c *Crawler) recordRun(startTime time.Time, pages, failedPages, scraped, changed int, err error) {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()

	c.stats.RunCount++
	c.stats.LastRun = startTime
	c.stats.LastRunDuration = time.Since(startTime).String()
	c.stats.PagesRequested = pages
	c.stats.PagesFailed = failedPages
	c.stats.ProductsScraped = scraped
	c.stats.ProductsChanged = changed
	c.stats.LastError = ""
	if err != nil {
		c.stats.LastError = err.Error()
	}
}

// MaxPageLimit returns the largest page_limit Run accepts
func (c *Crawler) MaxPageLimit() int {
	return c.maxPageLimit
}

// MaxRunDuration bounds how long Run can take for pageLimit pages when every
// fetch exhausts its retries
func (c *Crawler) MaxRunDuration(pageLimit int) time.Duration {
	if pageLimit <= 0 {
		return 0
	}
	waves := (pageLimit + c.maxConcurrentPages - 1) / c.maxConcurrentPages
	return time.Duration(waves) * c.fetcherOpts.MaxFetchDuration()
}

// Stats returns statistics for the most recent run
func (c *Crawler) Stats() RunStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	return c.stats
}

// StartScheduledRuns runs immediately and then on every interval until ctx is done
func (c *Crawler) StartScheduledRuns(ctx context.Context, interval time.Duration, params models.ScrapeParameters) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("Starting scheduled crawler runs", zap.Duration("interval", interval))

	if _, err := c.Run(ctx, params); err != nil {
		c.log.Error("Initial crawler run failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if _, err := c.Run(ctx, params); err != nil {
				c.log.Error("Scheduled crawler run failed", zap.Error(err))
			}
		case <-ctx.Done():
			c.log.Info("Stopping scheduled crawler runs")
			return
		}
	}
}
