package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/database"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database database.Config

	// Cache configuration
	Cache cache.Config

	// Engine configuration
	Engine EngineConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Warmer configuration
	Warmer WarmerConfig

	// Per-tenant API rate limiting
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// EngineConfig holds analytics engine settings
type EngineConfig struct {
	CacheTTL        time.Duration
	InsightCacheTTL time.Duration
	QueryTimeout    time.Duration
	MaxConcurrency  int
	StableBand      float64

	// Optional operator-supplied catalog and template files
	CatalogPath   string
	TemplatesPath string

	Insights analytics.InsightConfig
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool    // Use insecure gRPC connection
	OTelSampleRatio    float64 // Fraction of root traces kept
}

// WarmerConfig holds background precomputation settings
type WarmerConfig struct {
	Tenants          []string
	TemplateSchedule string
	InsightSchedule  string
	Workers          int
	RunOnStart       bool
}

// RateLimitConfig holds per-tenant API rate limit settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Engine:        loadEngineConfig(),
		Observability: loadObservabilityConfig(),
		Warmer:        loadWarmerConfig(),
		RateLimit:     loadRateLimitConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("THORBIS_HOST", "0.0.0.0"),
		Port:            getEnv("THORBIS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("THORBIS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("THORBIS_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("THORBIS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("THORBIS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("THORBIS_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() database.Config {
	return database.Config{
		PrimaryURL:  getEnv("THORBIS_POSTGRES_URL", ""),
		ReplicaURLs: database.ParseReplicaURLs(getEnv("THORBIS_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("THORBIS_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("THORBIS_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("THORBIS_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("THORBIS_POSTGRES_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("THORBIS_POSTGRES_MAX_IDLE_TIME", 10*time.Minute),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	cfg.Backend = strings.ToLower(getEnv("THORBIS_CACHE_BACKEND", cfg.Backend))
	cfg.KeyPrefix = getEnv("THORBIS_CACHE_KEY_PREFIX", cfg.KeyPrefix)
	cfg.TagTTL = getEnvDuration("THORBIS_CACHE_TAG_TTL", cfg.TagTTL)

	// Redis config
	cfg.RedisURL = getEnv("THORBIS_REDIS_URL", "")
	cfg.RedisPassword = getEnv("THORBIS_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("THORBIS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if maxRetries := getEnvInt("THORBIS_REDIS_MAX_RETRIES", 0); maxRetries > 0 {
		cfg.RedisMaxRetries = maxRetries
	}
	if poolSize := getEnvInt("THORBIS_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	// Memory config
	if entries := getEnvInt("THORBIS_CACHE_MAX_ENTRIES", 0); entries > 0 {
		cfg.MaxEntries = entries
	}
	cfg.MaxTTL = getEnvDuration("THORBIS_CACHE_MAX_TTL", cfg.MaxTTL)

	return cfg
}

// loadEngineConfig loads analytics engine configuration from environment
func loadEngineConfig() EngineConfig {
	defaults := analytics.DefaultConfig()
	insights := defaults.Insights

	return EngineConfig{
		CacheTTL:        getEnvDuration("THORBIS_CACHE_TTL", defaults.CacheTTL),
		InsightCacheTTL: getEnvDuration("THORBIS_INSIGHT_CACHE_TTL", defaults.InsightCacheTTL),
		QueryTimeout:    getEnvDuration("THORBIS_QUERY_TIMEOUT", defaults.QueryTimeout),
		MaxConcurrency:  getEnvInt("THORBIS_MAX_CONCURRENCY", defaults.MaxConcurrency),
		StableBand:      getEnvFloat("THORBIS_STABLE_BAND_PCT", defaults.StableBand),
		CatalogPath:     getEnv("THORBIS_CATALOG_PATH", ""),
		TemplatesPath:   getEnv("THORBIS_TEMPLATES_PATH", ""),
		Insights: analytics.InsightConfig{
			HistoryBuckets:       getEnvInt("THORBIS_INSIGHT_HISTORY_BUCKETS", insights.HistoryBuckets),
			BucketDuration:       getEnvDuration("THORBIS_INSIGHT_BUCKET", insights.BucketDuration),
			GrowthOpportunityPct: getEnvFloat("THORBIS_INSIGHT_GROWTH_PCT", insights.GrowthOpportunityPct),
			DeclineWarningPct:    getEnvFloat("THORBIS_INSIGHT_DECLINE_PCT", insights.DeclineWarningPct),
			AnomalyZScore:        getEnvFloat("THORBIS_INSIGHT_ANOMALY_Z", insights.AnomalyZScore),
			MinAnomalyHistory:    getEnvInt("THORBIS_INSIGHT_MIN_ANOMALY_HISTORY", insights.MinAnomalyHistory),
			SustainedGrowthPct:   getEnvFloat("THORBIS_INSIGHT_SUSTAINED_PCT", insights.SustainedGrowthPct),
			HighImpactPct:        getEnvFloat("THORBIS_INSIGHT_HIGH_IMPACT_PCT", insights.HighImpactPct),
			MediumImpactPct:      getEnvFloat("THORBIS_INSIGHT_MEDIUM_IMPACT_PCT", insights.MediumImpactPct),
		},
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("THORBIS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("THORBIS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("THORBIS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("THORBIS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("THORBIS_OTEL_SERVICE_NAME", "analytics-server"),
		OTelServiceVersion: getEnv("THORBIS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("THORBIS_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("THORBIS_OTEL_SAMPLE_RATIO", 1),
	}
}

// loadWarmerConfig loads warmer configuration from environment
func loadWarmerConfig() WarmerConfig {
	return WarmerConfig{
		Tenants:          getEnvList("THORBIS_WARMER_TENANTS"),
		TemplateSchedule: getEnv("THORBIS_WARMER_TEMPLATE_SCHEDULE", "*/5 * * * *"),
		InsightSchedule:  getEnv("THORBIS_WARMER_INSIGHT_SCHEDULE", "*/15 * * * *"),
		Workers:          getEnvInt("THORBIS_WARMER_WORKERS", 4),
		RunOnStart:       getEnvBool("THORBIS_WARMER_RUN_ON_START", true),
	}
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("THORBIS_RATE_LIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("THORBIS_RATE_LIMIT_REQUESTS", 600),
		Window:            getEnvDuration("THORBIS_RATE_LIMIT_WINDOW", time.Minute),
		Burst:             getEnvInt("THORBIS_RATE_LIMIT_BURST", 60),
	}
}

// AnalyticsConfig converts the engine settings into an analytics.Config
func (c *Config) AnalyticsConfig() analytics.Config {
	return analytics.Config{
		CacheTTL:        c.Engine.CacheTTL,
		InsightCacheTTL: c.Engine.InsightCacheTTL,
		QueryTimeout:    c.Engine.QueryTimeout,
		MaxConcurrency:  c.Engine.MaxConcurrency,
		StableBand:      c.Engine.StableBand,
		Insights:        c.Engine.Insights,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid postgres pool bounds: min %d, max %d", c.Database.MinConns, c.Database.MaxConns)
	}

	// Validate cache config based on backend
	switch c.Cache.Backend {
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	case cache.BackendMemory:
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("memory cache needs a positive entry limit")
		}
		if c.Cache.MaxTTL < c.Engine.CacheTTL || c.Cache.MaxTTL < c.Engine.InsightCacheTTL {
			return fmt.Errorf("memory cache max TTL %s is shorter than the result TTLs", c.Cache.MaxTTL)
		}
	case cache.BackendNone:
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis, memory, or none)", c.Cache.Backend)
	}

	// Validate engine config
	if c.Engine.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Engine.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive")
	}
	if c.Engine.CacheTTL < 0 || c.Engine.InsightCacheTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.Engine.StableBand < 0 {
		return fmt.Errorf("stable band must not be negative")
	}
	if err := c.Engine.Insights.Validate(); err != nil {
		return fmt.Errorf("invalid insight settings: %w", err)
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 || c.RateLimit.Burst < 0 {
			return fmt.Errorf("invalid rate limit: %d requests per %s, burst %d",
				c.RateLimit.RequestsPerWindow, c.RateLimit.Window, c.RateLimit.Burst)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", c.Observability.OTelSampleRatio)
		}
	}

	// Validate warmer schedules
	if _, err := cron.ParseStandard(c.Warmer.TemplateSchedule); err != nil {
		return fmt.Errorf("invalid template warmer schedule %q: %w", c.Warmer.TemplateSchedule, err)
	}
	if _, err := cron.ParseStandard(c.Warmer.InsightSchedule); err != nil {
		return fmt.Errorf("invalid insight warmer schedule %q: %w", c.Warmer.InsightSchedule, err)
	}
	if c.Warmer.Workers <= 0 {
		return fmt.Errorf("warmer workers must be positive")
	}
	for _, tenant := range c.Warmer.Tenants {
		if err := analytics.ValidateTenantID(tenant); err != nil {
			return fmt.Errorf("invalid warmer tenant %q: %w", tenant, err)
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a list
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
