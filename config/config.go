package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBPath     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Maintenance starts the command bus with workflows paused.
	Maintenance bool

	Outbox    OutboxConfig
	Workflows WorkflowConfig
	Jobs      JobsConfig
	S3        S3Config
	RateLimit RateLimitConfig
}

type OutboxConfig struct {
	BatchSize      int
	Interval       time.Duration
	MaxRetries     int
	Concurrency    int
	HandlerTimeout time.Duration
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	Lease          time.Duration
}

type WorkflowConfig struct {
	ProviderTimeout    time.Duration
	RenewalWindowDays  int
	StrictProvisioning bool
	RateCacheTTL       time.Duration
	InvoiceDueDays     int
}

type JobsConfig struct {
	RateSweepSpec   string
	RenewalScanSpec string
	ExpirySweepSpec string
	JobTimeout      time.Duration
	Enabled         bool
}

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	// PresignTTL bounds archive download links.
	PresignTTL time.Duration
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		DBDriver:      getEnv("DB_DRIVER", "pgx"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "billing_lifecycle"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBPath:        getEnv("DB_PATH", "billing.db"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		Maintenance:   getEnvAsBool("MAINTENANCE", false),
		Outbox: OutboxConfig{
			BatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
			Interval:       getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
			MaxRetries:     getEnvAsInt("OUTBOX_MAX_RETRIES", 10),
			Concurrency:    getEnvAsInt("OUTBOX_CONCURRENCY", 8),
			HandlerTimeout: getEnvAsDuration("HANDLER_TIMEOUT", 30*time.Second),
			RetryBackoff:   getEnvAsDuration("OUTBOX_RETRY_BACKOFF", 5*time.Second),
			MaxBackoff:     getEnvAsDuration("OUTBOX_MAX_BACKOFF", 15*time.Minute),
			Lease:          getEnvAsDuration("OUTBOX_LEASE", 2*time.Minute),
		},
		Workflows: WorkflowConfig{
			ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
			RenewalWindowDays:  getEnvAsInt("RENEWAL_WINDOW_DAYS", 30),
			StrictProvisioning: getEnvAsBool("STRICT_PROVISIONING", false),
			RateCacheTTL:       getEnvAsDuration("RATE_CACHE_TTL", time.Minute),
			InvoiceDueDays:     getEnvAsInt("INVOICE_DUE_DAYS", 7),
		},
		Jobs: JobsConfig{
			RateSweepSpec:   getEnv("JOB_RATE_SWEEP", "@every 1h"),
			RenewalScanSpec: getEnv("JOB_RENEWAL_SCAN", "@every 6h"),
			ExpirySweepSpec: getEnv("JOB_EXPIRY_SWEEP", "@every 1h"),
			JobTimeout:      getEnvAsDuration("JOB_TIMEOUT", 10*time.Minute),
			Enabled:         getEnvAsBool("JOBS_ENABLED", true),
		},
		S3: S3Config{
			Region:     getEnv("S3_REGION", ""),
			Bucket:     getEnv("S3_BUCKET", ""),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PresignTTL: getEnvAsDuration("S3_PRESIGN_TTL", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvAsInt("RATE_LIMIT", 120),
			Window: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// RedisEnabled reports whether a Redis host was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
