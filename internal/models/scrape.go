package models

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrInvalidPageLimit is returned when a run is requested with a non-positive page limit
	ErrInvalidPageLimit = errors.New("page_limit must be a positive integer")

	// ErrPageLimitTooLarge is returned when a run asks for more pages than allowed
	ErrPageLimitTooLarge = errors.New("page_limit exceeds the maximum")

	// ErrInvalidProxy is returned when the proxy address is not an absolute URL
	ErrInvalidProxy = errors.New("proxy must be an absolute URL")
)

// DefaultMaxPageLimit bounds page_limit when no other maximum is configured
const DefaultMaxPageLimit = 1000

// ScrapeParameters holds the per-run settings supplied by the caller
type ScrapeParameters struct {
	PageLimit int    `json:"page_limit"`
	Proxy     string `json:"proxy,omitempty"`
}

// Validate checks the parameters against DefaultMaxPageLimit
func (p ScrapeParameters) Validate() error {
	return p.ValidateLimit(DefaultMaxPageLimit)
}

// ValidateLimit checks the parameters before any page is fetched.
// A non-positive maxPages uses DefaultMaxPageLimit.
func (p ScrapeParameters) ValidateLimit(maxPages int) error {
	if maxPages <= 0 {
		maxPages = DefaultMaxPageLimit
	}
	if p.PageLimit <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageLimit, p.PageLimit)
	}
	if p.PageLimit > maxPages {
		return fmt.Errorf("%w: got %d, maximum is %d", ErrPageLimitTooLarge, p.PageLimit, maxPages)
	}
	if _, err := p.ProxyURL(); err != nil {
		return err
	}
	return nil
}

// ProxyURL parses the proxy address. It returns nil when no proxy is set.
func (p ScrapeParameters) ProxyURL() (*url.URL, error) {
	if p.Proxy == "" {
		return nil, nil
	}

	u, err := url.Parse(p.Proxy)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, p.Proxy)
	}
	return u, nil
}
