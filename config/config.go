package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisURL    string
	GeoCacheTTL time.Duration

	SitesFile     string
	CSVOutputPath string
	ChromeBin     string

	// Fetch cascade.
	AttemptBudget  int
	AbandonAfter   int
	FetchTimeout   time.Duration
	RateLimitMs    int
	UnblockAPIURL  string
	UnblockAPIKey  string
	UnblockTimeout time.Duration

	// Quality and enrichment.
	QualityFloor      int
	EnrichDetails     bool
	EnrichConcurrency int
	GeocodeEnabled    bool
	GeocodeAPIURL     string
	GeocodeIntervalMs int

	// Sink.
	UploadBatchSize int

	// Scheduling.
	SitesPerSession  int
	MaxParallel      int
	SessionTimeout   time.Duration
	JobCeiling       time.Duration
	SafetyMultiplier float64
	PerPageSeconds   int

	// Non-empty CronSpec switches main into daemon mode.
	CronSpec string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisURL:    getEnv("REDIS_URL", ""),
		GeoCacheTTL: getEnvDuration("GEO_CACHE_TTL", 30*24*time.Hour),

		SitesFile:     getEnv("SITES_FILE", "./sites.yaml"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_listings.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		AttemptBudget:  getEnvInt("ATTEMPT_BUDGET", 4),
		AbandonAfter:   getEnvInt("ABANDON_AFTER", 3),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		UnblockAPIURL:  getEnv("UNBLOCK_API_URL", ""),
		UnblockAPIKey:  getEnv("UNBLOCK_API_KEY", ""),
		UnblockTimeout: getEnvDuration("UNBLOCK_TIMEOUT", 120*time.Second),

		QualityFloor:      getEnvInt("QUALITY_FLOOR", 60),
		EnrichDetails:     getEnvBool("ENRICH_DETAILS", false),
		EnrichConcurrency: getEnvInt("ENRICH_CONCURRENCY", 1),
		GeocodeEnabled:    getEnvBool("GEOCODE_ENABLED", false),
		GeocodeAPIURL:     getEnv("GEOCODE_API_URL", "https://nominatim.openstreetmap.org/search"),
		GeocodeIntervalMs: getEnvInt("GEOCODE_INTERVAL_MS", 1100),

		UploadBatchSize: getEnvInt("UPLOAD_BATCH_SIZE", 50),

		SitesPerSession:  getEnvInt("SITES_PER_SESSION", 3),
		MaxParallel:      getEnvInt("MAX_PARALLEL_SESSIONS", 2),
		SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 20*time.Minute),
		JobCeiling:       getEnvDuration("JOB_CEILING", 2*time.Hour),
		SafetyMultiplier: getEnvFloat("SAFETY_MULTIPLIER", 1.5),
		PerPageSeconds:   getEnvInt("PER_PAGE_SECONDS", 15),

		CronSpec: getEnv("SCRAPE_CRON", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "20m") and falls back
// to seconds for bare integers.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
