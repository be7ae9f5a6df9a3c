package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts    = 5
	defaultBaseDelay      = 2 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

var (
	// ErrNotFound means the server answered 404; the page is not retried
	ErrNotFound = errors.New("page not found")

	// ErrRetriesExhausted means every attempt failed
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// FetcherOptions configures a Fetcher. Zero values fall back to the defaults.
type FetcherOptions struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	// Proxy is used for every attempt when set
	Proxy *url.URL

	// Limiter is waited on before every attempt when set
	Limiter *rate.Limiter

	// Headers replaces the default browser-like request headers
	Headers map[string]string
}

// Fetcher retrieves raw page content with bounded retry and exponential backoff.
// All requests from one Fetcher share a single connection pool.
type Fetcher struct {
	client         *http.Client
	transport      *http.Transport
	log            *zap.Logger
	headers        map[string]string
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	sleep          func(ctx context.Context, d time.Duration) error
}

func (o FetcherOptions) withDefaults() FetcherOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = defaultAttemptTimeout
	}
	if o.Headers == nil {
		o.Headers = getDefaultHeaders()
	}
	return o
}

// MaxFetchDuration is the longest one Fetch can take when every attempt times
// out: all attempt timeouts plus every backoff delay. Rate limiter waits are
// not included.
func (o FetcherOptions) MaxFetchDuration() time.Duration {
	o = o.withDefaults()

	total := time.Duration(o.MaxAttempts) * o.AttemptTimeout
	delay := o.BaseDelay
	for i := 1; i < o.MaxAttempts; i++ {
		total += delay
		delay *= 2
	}
	return total
}

// NewFetcher creates a new fetcher with the given options
func NewFetcher(log *zap.Logger, opts FetcherOptions) *Fetcher {
	opts = opts.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}

	return &Fetcher{
		client:         &http.Client{Transport: transport},
		transport:      transport,
		log:            log.Named("fetcher"),
		headers:        opts.Headers,
		maxAttempts:    opts.MaxAttempts,
		baseDelay:      opts.BaseDelay,
		attemptTimeout: opts.AttemptTimeout,
		limiter:        opts.Limiter,
		sleep:          sleepContext,
	}
}

// retryState tracks one Fetch call: attempts made so far and the next backoff
type retryState struct {
	attempt     int
	maxAttempts int
	delay       time.Duration
}

func newRetryState(maxAttempts int, baseDelay time.Duration) *retryState {
	return &retryState{maxAttempts: maxAttempts, delay: baseDelay}
}

// next starts another attempt, reporting false once the budget is spent
func (s *retryState) next() bool {
	if s.attempt >= s.maxAttempts {
		return false
	}
	s.attempt++
	return true
}

// exhausted reports whether the current attempt was the last one
func (s *retryState) exhausted() bool {
	return s.attempt >= s.maxAttempts
}

// backoff returns the delay before the next attempt and doubles it
func (s *retryState) backoff() time.Duration {
	d := s.delay
	s.delay *= 2
	return d
}

// Fetch retrieves the content of a URL with retry logic.
// It returns ErrNotFound without retrying on a 404, and ErrRetriesExhausted
// once every attempt failed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	state := newRetryState(f.maxAttempts, f.baseDelay)

	var lastErr error
	for state.next() {
		content, err := f.fetchOnce(ctx, url)
		if err == nil {
			f.log.Debug("Successfully fetched URL",
				zap.String("url", url),
				zap.Int("attempt", state.attempt),
				zap.Int("content_length", len(content)))
			return content, nil
		}

		if errors.Is(err, ErrNotFound) {
			f.log.Error("Page not found", zap.String("url", url))
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}

		lastErr = err
		f.log.Warn("Error fetching URL",
			zap.Error(err),
			zap.String("url", url),
			zap.Int("attempt", state.attempt))

		if state.exhausted() {
			break
		}

		delay := state.backoff()
		f.log.Info("Retrying fetch", zap.String("url", url), zap.Duration("delay", delay))
		if err := f.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	f.log.Error("Failed to fetch URL",
		zap.String("url", url),
		zap.Int("attempts", state.attempt),
		zap.Error(lastErr))

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, url, state.attempt, lastErr)
}

// fetchOnce performs a single attempt bounded by the per-attempt timeout
func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	content, err := ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return content, nil
}

// Close releases idle connections held by the fetcher's pool
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getDefaultHeaders returns common headers for HTTP requests
func getDefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, br",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
}
