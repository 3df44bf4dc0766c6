package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const maxPageSize = 100

// maxArchiveBatch keeps one upsert (6 binds per row) under PostgreSQL's 65535 parameter limit.
const maxArchiveBatch = 10_000

type Config struct {
	Port string

	HubSpotBaseURL string
	HubSpotToken   string
	HTTPTimeout    time.Duration

	LookbackDays       int
	MaxLookbackDays    int
	PageSize           int
	MaxResultsPerQuery int
	Partition          string
	MinSubwindow       time.Duration
	ReportTimezone     string
	MaxRecords         int

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RequestsPerSecond   float64

	CacheTTL        time.Duration
	CacheMaxEntries int
	TableLimit      int

	PostgresDSN     string
	QueueMaxSize    int
	BatchMaxSize    int
	BatchMaxWait    time.Duration
	APIKeys         map[string]struct{}
	RateLimitPerMin int
	LogLevel        string
}

// Load reads an optional .env file and then parses the environment.
func Load() Config {
	_ = godotenv.Load()
	return Parse()
}

func Parse() Config {
	return Config{
		Port: getString("PORT", "8080"),

		HubSpotBaseURL: strings.TrimRight(getString("HUBSPOT_BASE_URL", "https://api.hubapi.com"), "/"),
		HubSpotToken:   getString("HUBSPOT_TOKEN", ""),
		HTTPTimeout:    time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,

		LookbackDays:       getInt("LOOKBACK_DAYS", 14),
		MaxLookbackDays:    getInt("MAX_LOOKBACK_DAYS", 90),
		PageSize:           getInt("PAGE_SIZE", maxPageSize),
		MaxResultsPerQuery: getInt("MAX_RESULTS_PER_QUERY", 10_000),
		Partition:          strings.ToLower(getString("PARTITION", "auto")),
		MinSubwindow:       time.Duration(getInt("MIN_SUBWINDOW_SECONDS", 60)) * time.Second,
		ReportTimezone:     getString("REPORT_TIMEZONE", "UTC"),
		MaxRecords:         getInt("MAX_RECORDS", 50_000),

		RetryMaxAttempts:    getInt("RETRY_MAX_ATTEMPTS", 5),
		RetryInitialBackoff: time.Duration(getInt("RETRY_INITIAL_BACKOFF_MS", 1000)) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(getInt("RETRY_MAX_BACKOFF_MS", 30_000)) * time.Millisecond,
		RequestsPerSecond:   getFloat("REQUESTS_PER_SECOND", 4),

		CacheTTL:        time.Duration(getInt("CACHE_TTL_SECONDS", 600)) * time.Second,
		CacheMaxEntries: getInt("CACHE_MAX_ENTRIES", 16),
		TableLimit:      getInt("TABLE_LIMIT", 20),

		PostgresDSN:     getString("POSTGRES_DSN", ""),
		QueueMaxSize:    getInt("ARCHIVE_QUEUE_MAX_SIZE", 10_000),
		BatchMaxSize:    getInt("ARCHIVE_BATCH_MAX_SIZE", 500),
		BatchMaxWait:    time.Duration(getInt("ARCHIVE_BATCH_MAX_WAIT_MS", 200)) * time.Millisecond,
		APIKeys:         parseKeys(getString("API_KEYS", "")),
		RateLimitPerMin: getInt("RATE_LIMIT_DASHBOARD_PER_MIN", 60),
		LogLevel:        getString("LOG_LEVEL", "info"),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.HubSpotToken == "" {
		errs = append(errs, errors.New("HUBSPOT_TOKEN is required"))
	}
	if c.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("LOOKBACK_DAYS must be >= 1, got %d", c.LookbackDays))
	}
	if c.MaxLookbackDays < c.LookbackDays {
		errs = append(errs, fmt.Errorf("MAX_LOOKBACK_DAYS (%d) must be >= LOOKBACK_DAYS (%d)", c.MaxLookbackDays, c.LookbackDays))
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be within 1..%d, got %d", maxPageSize, c.PageSize))
	}
	if c.MaxResultsPerQuery < c.PageSize {
		errs = append(errs, fmt.Errorf("MAX_RESULTS_PER_QUERY (%d) must be >= PAGE_SIZE (%d)", c.MaxResultsPerQuery, c.PageSize))
	}
	switch c.Partition {
	case "auto", "day", "hour":
	default:
		errs = append(errs, fmt.Errorf("PARTITION must be auto, day or hour, got %q", c.Partition))
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		errs = append(errs, fmt.Errorf("REPORT_TIMEZONE: %w", err))
	}
	if c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("MAX_RECORDS must be >= 0, got %d", c.MaxRecords))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts))
	}
	if c.CacheMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must be >= 1, got %d", c.CacheMaxEntries))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL_SECONDS must be >= 0, got %s", c.CacheTTL))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_PER_SECOND must be >= 0, got %g", c.RequestsPerSecond))
	}
	if c.MinSubwindow < 0 {
		errs = append(errs, fmt.Errorf("MIN_SUBWINDOW_SECONDS must be >= 0, got %s", c.MinSubwindow))
	}

	if c.ArchiveEnabled() {
		if c.QueueMaxSize < 1 {
			errs = append(errs, fmt.Errorf("ARCHIVE_QUEUE_MAX_SIZE must be >= 1, got %d", c.QueueMaxSize))
		}
		if c.BatchMaxSize < 1 || c.BatchMaxSize > maxArchiveBatch {
			errs = append(errs, fmt.Errorf("ARCHIVE_BATCH_MAX_SIZE must be within 1..%d, got %d", maxArchiveBatch, c.BatchMaxSize))
		}
		if c.BatchMaxWait <= 0 {
			errs = append(errs, fmt.Errorf("ARCHIVE_BATCH_MAX_WAIT_MS must be > 0, got %s", c.BatchMaxWait))
		}
	}

	return errors.Join(errs...)
}

// Location returns the reporting timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ArchiveEnabled reports whether collected contacts are written to Postgres.
func (c Config) ArchiveEnabled() bool { return c.PostgresDSN != "" }

func parseKeys(csv string) map[string]struct{} {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return map[string]struct{}{}
	}
	m := make(map[string]struct{})
	for _, k := range strings.Split(csv, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
