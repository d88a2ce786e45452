package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	pkgerrors "gearshed/catalogworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Upstream site
	SiteBaseURL string
	PageSize    int

	// Network egress; every request is routed through this proxy
	ProxyURL     string
	FetchTimeout time.Duration

	// Politeness delay window applied before each fetch
	DelayMin time.Duration
	DelayMax time.Duration

	// Rate-limit block window after an upstream 429
	BlockTime time.Duration

	// Pagination safety
	MaxPages       int
	EmptyPageLimit int
	StartPage      int

	// Worker pools
	CrawlWorkers     int
	ImageWorkers     int
	DetailRetryDelay time.Duration

	// Horizontal partitioning of category indices
	PartitionIndex int
	PartitionCount int

	// Test-mode cap on ingested items; zero means unlimited
	ItemLimit int

	// Postgres catalog
	PostgresURL string

	// Object storage
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StoragePublicURL string

	// Memcache (rate-limit block cache)
	MemcacheAddr string

	// Redis stream publisher; empty addr disables publishing
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Optional operational endpoints
	MetricsAddr string
	ScalerURL   string
	ScalerToken string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		SiteBaseURL: getEnv("SITE_BASE_URL", "https://www.strumhouse.com"),
		PageSize:    getInt("PAGE_SIZE", 100),

		ProxyURL:     getEnv("PROXY_URL", ""),
		FetchTimeout: time.Duration(getInt("FETCH_TIMEOUT_SECONDS", 20)) * time.Second,

		DelayMin: time.Duration(getInt("DELAY_MIN_MS", 800)) * time.Millisecond,
		DelayMax: time.Duration(getInt("DELAY_MAX_MS", 2500)) * time.Millisecond,

		BlockTime: time.Duration(getInt("BLOCK_SECONDS", 300)) * time.Second,

		MaxPages:       getInt("MAX_PAGES", 200),
		EmptyPageLimit: getInt("EMPTY_PAGE_LIMIT", 3),
		StartPage:      getInt("START_PAGE", 1),

		CrawlWorkers:     getInt("CRAWL_WORKERS", 3),
		ImageWorkers:     getInt("IMAGE_WORKERS", 5),
		DetailRetryDelay: time.Duration(getInt("DETAIL_RETRY_DELAY_MS", 1500)) * time.Millisecond,

		PartitionIndex: getInt("PARTITION_INDEX", 0),
		PartitionCount: getInt("PARTITION_COUNT", 1),

		ItemLimit: getInt("ITEM_LIMIT", 0),

		PostgresURL: getEnv("POSTGRES_URL", ""),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", "catalog-images"),
		StorageUseSSL:    getEnv("STORAGE_USE_SSL", "true") == "true",
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", ""),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", "localhost:11211"),

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "catalog"),
		RedisStreamCount:     getInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getInt("REDIS_STREAM_MAX_LENGTH", 500),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		ScalerURL:   getEnv("SCALER_URL", ""),
		ScalerToken: getEnv("SCALER_TOKEN", ""),

		Environment: getEnv("CATALOG_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is usable; failures here abort startup
func (c *Config) Validate() error {
	if c.ProxyURL == "" {
		return pkgerrors.NewConfiguration("PROXY_URL is required; all egress is routed through the upstream proxy", nil)
	}
	if _, err := url.Parse(c.ProxyURL); err != nil {
		return pkgerrors.NewConfiguration("PROXY_URL is not a valid URL", err)
	}
	if c.PostgresURL == "" {
		return pkgerrors.NewConfiguration("POSTGRES_URL is required", nil)
	}
	if c.StorageEndpoint == "" || c.StorageAccessKey == "" || c.StorageSecretKey == "" {
		return pkgerrors.NewConfiguration("object storage credentials are required (STORAGE_ENDPOINT, STORAGE_ACCESS_KEY, STORAGE_SECRET_KEY)", nil)
	}
	if c.CrawlWorkers < 1 || c.ImageWorkers < 1 {
		return pkgerrors.NewConfiguration("worker pool sizes must be at least 1", nil)
	}
	if c.DelayMin > c.DelayMax {
		return pkgerrors.NewConfiguration("DELAY_MIN_MS must not exceed DELAY_MAX_MS", nil)
	}
	if c.PartitionCount < 1 || c.PartitionIndex < 0 || c.PartitionIndex >= c.PartitionCount {
		return pkgerrors.NewConfiguration("partition settings must satisfy 0 <= PARTITION_INDEX < PARTITION_COUNT", nil)
	}
	if c.StartPage < 1 {
		return pkgerrors.NewConfiguration("START_PAGE must be at least 1", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getInt retrieves an integer environment variable or returns a default value
func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
