package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Preference store backends
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Environment   string
	IsProduction  bool
	IsDevelopment bool

	// HTTP API Configuration
	HTTPAddr    string
	StaticToken string

	// Catalog Configuration
	ShopBaseURL  string
	ProductsFile string

	// Fetch Configuration
	FetchMaxAttempts    int
	FetchBaseDelay      time.Duration
	FetchAttemptTimeout time.Duration
	MaxConcurrentPages  int
	RatePerSecond       float64
	RateBurst           int

	// Change detection
	CacheTTL time.Duration

	// Scheduled runs
	ScrapePageLimit      int
	MaxPageLimit         int
	ScrapeProxy          string
	CrawlIntervalMinutes int

	// Notification preference storage
	PreferenceStore string
	MongoDBURI      string
	MongoDBDatabase string
	PostgresDSN     string

	// Notification defaults
	DiscordToken                  string
	DefaultNotificationType       string
	DefaultNotificationRecipients []string

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads the configuration from environment variables.
// envFiles are passed to godotenv; with none, a .env in the working directory is used if present.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 && envFiles[0] != "" {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Environment:             getEnv("ENVIRONMENT", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8000"),
		StaticToken:             getEnv("STATIC_TOKEN", ""),
		ShopBaseURL:             getEnv("SHOP_BASE_URL", "https://dentalstall.com/shop/"),
		ProductsFile:            getEnv("PRODUCTS_FILE", "products.json"),
		ScrapeProxy:             getEnv("SCRAPE_PROXY", ""),
		PreferenceStore:         strings.ToLower(getEnv("PREFERENCE_STORE", StoreMemory)),
		MongoDBURI:              getEnv("MONGODB_URI", ""),
		MongoDBDatabase:         getEnv("MONGODB_DATABASE", "dentscraper"),
		PostgresDSN:             getEnv("POSTGRES_DSN", ""),
		DiscordToken:            getEnv("DISCORD_TOKEN", ""),
		DefaultNotificationType: getEnv("DEFAULT_NOTIFICATION_TYPE", "terminal"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFile:                 getEnv("LOG_FILE", "logs/dentscraper.log"),
	}

	// Derived properties
	cfg.IsProduction = cfg.Environment == "production"
	cfg.IsDevelopment = !cfg.IsProduction

	if !strings.HasSuffix(cfg.ShopBaseURL, "/") {
		cfg.ShopBaseURL += "/"
	}

	if v := getEnv("DEFAULT_NOTIFICATION_RECIPIENTS", ""); v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.DefaultNotificationRecipients = append(cfg.DefaultNotificationRecipients, r)
			}
		}
	}

	// Parse numeric values
	cfg.FetchMaxAttempts = getEnvInt("FETCH_MAX_ATTEMPTS", 5)
	cfg.FetchBaseDelay = time.Duration(getEnvInt("FETCH_BASE_DELAY_SECONDS", 2)) * time.Second
	cfg.FetchAttemptTimeout = time.Duration(getEnvInt("FETCH_ATTEMPT_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.MaxConcurrentPages = getEnvInt("MAX_CONCURRENT_PAGES", 8)
	cfg.RateBurst = getEnvInt("RATE_BURST", 1)
	cfg.CacheTTL = time.Duration(getEnvInt("CACHE_TTL_MINUTES", 60)) * time.Minute
	cfg.ScrapePageLimit = getEnvInt("SCRAPE_PAGE_LIMIT", 5)
	cfg.MaxPageLimit = getEnvInt("MAX_PAGE_LIMIT", 1000)
	cfg.CrawlIntervalMinutes = getEnvInt("CRAWL_INTERVAL_MINUTES", 30)

	rps, err := strconv.ParseFloat(getEnv("RATE_PER_SECOND", "0"), 64)
	if err != nil || rps < 0 {
		rps = 0
	}
	cfg.RatePerSecond = rps

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.PreferenceStore {
	case StoreMemory:
	case StoreMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI environment variable is required when PREFERENCE_STORE=mongo")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN environment variable is required when PREFERENCE_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported PREFERENCE_STORE %q", c.PreferenceStore)
	}

	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1")
	}

	if c.MaxPageLimit < 1 {
		return fmt.Errorf("MAX_PAGE_LIMIT must be at least 1")
	}

	return nil
}

// ValidateServe checks the settings only the HTTP API needs
func (c *Config) ValidateServe() error {
	if c.StaticToken == "" {
		return fmt.Errorf("STATIC_TOKEN environment variable is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt parses an integer variable, falling back to the default when unset or invalid
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return n
}
