package config

import (
	"strings"
	"testing"
	"time"

	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"false", true, false},
		{"no", true, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "soon")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 7", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvFloat() = %v, want 2.5", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " org-1, ,org-2,")
	got := getEnvList("TEST_LIST")
	if len(got) != 2 || got[0] != "org-1" || got[1] != "org-2" {
		t.Errorf("getEnvList() = %v, want [org-1 org-2]", got)
	}
	if got := getEnvList("TEST_LIST_UNSET"); len(got) != 0 {
		t.Errorf("getEnvList() for unset var = %v, want empty", got)
	}
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("THORBIS_CACHE_BACKEND", "REDIS")
	t.Setenv("THORBIS_REDIS_URL", "redis://localhost:6379")
	t.Setenv("THORBIS_REDIS_DB", "3")
	t.Setenv("THORBIS_REDIS_POOL_SIZE", "25")

	cfg := loadCacheConfig()
	if cfg.Backend != cache.BackendRedis {
		t.Errorf("Backend = %q, want redis", cfg.Backend)
	}
	if cfg.RedisURL != "redis://localhost:6379" || cfg.RedisDB != 3 || cfg.RedisPoolSize != 25 {
		t.Errorf("unexpected redis settings: %+v", cfg)
	}
	if cfg.KeyPrefix != cache.DefaultConfig().KeyPrefix {
		t.Errorf("KeyPrefix = %q, want default", cfg.KeyPrefix)
	}
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("THORBIS_POSTGRES_URL", "postgres://primary/db")
	t.Setenv("THORBIS_POSTGRES_REPLICA_URLS", "postgres://r1/db, postgres://r2/db")
	t.Setenv("THORBIS_POSTGRES_MAX_CONNS", "30")

	cfg := loadDatabaseConfig()
	if cfg.PrimaryURL != "postgres://primary/db" {
		t.Errorf("PrimaryURL = %q", cfg.PrimaryURL)
	}
	if len(cfg.ReplicaURLs) != 2 {
		t.Errorf("ReplicaURLs = %v, want 2 entries", cfg.ReplicaURLs)
	}
	if cfg.MaxConns != 30 || cfg.MinConns != 2 {
		t.Errorf("pool bounds = %d/%d, want 2/30", cfg.MinConns, cfg.MaxConns)
	}
}

func TestLoadEngineConfig(t *testing.T) {
	t.Setenv("THORBIS_QUERY_TIMEOUT", "3s")
	t.Setenv("THORBIS_MAX_CONCURRENCY", "4")
	t.Setenv("THORBIS_STABLE_BAND_PCT", "1.5")
	t.Setenv("THORBIS_INSIGHT_HISTORY_BUCKETS", "12")

	cfg := &Config{Engine: loadEngineConfig()}
	engine := cfg.AnalyticsConfig()
	if engine.QueryTimeout != 3*time.Second || engine.MaxConcurrency != 4 || engine.StableBand != 1.5 {
		t.Errorf("unexpected engine config: %+v", engine)
	}
	if engine.Insights.HistoryBuckets != 12 {
		t.Errorf("HistoryBuckets = %d, want 12", engine.Insights.HistoryBuckets)
	}
	if engine.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default 5m", engine.CacheTTL)
	}
}

// validConfig returns a configuration that passes Validate
func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("THORBIS_POSTGRES_URL", "postgres://localhost/analytics")
	return &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Engine:        loadEngineConfig(),
		Observability: loadObservabilityConfig(),
		Warmer:        loadWarmerConfig(),
		RateLimit:     loadRateLimitConfig(),
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with database URL",
			mutate: func(*Config) {},
		},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "same server and health port",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "server port and health port must be different",
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.PrimaryURL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "inverted pool bounds",
			mutate:  func(c *Config) { c.Database.MinConns = 50 },
			wantErr: "invalid postgres pool bounds",
		},
		{
			name:    "redis backend without URL",
			mutate:  func(c *Config) { c.Cache.Backend = cache.BackendRedis },
			wantErr: "redis URL is required",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "invalid cache backend",
		},
		{
			name:    "memory cache max TTL below result TTL",
			mutate:  func(c *Config) { c.Cache.MaxTTL = time.Minute },
			wantErr: "shorter than the result TTLs",
		},
		{
			name:   "no cache",
			mutate: func(c *Config) { c.Cache.Backend = cache.BackendNone },
		},
		{
			name:    "zero query timeout",
			mutate:  func(c *Config) { c.Engine.QueryTimeout = 0 },
			wantErr: "query timeout must be positive",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Engine.MaxConcurrency = 0 },
			wantErr: "max concurrency must be positive",
		},
		{
			name:    "invalid insight thresholds",
			mutate:  func(c *Config) { c.Engine.Insights.HistoryBuckets = 1 },
			wantErr: "invalid insight settings",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint is required",
		},
		{
			name: "otel sample ratio above one",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = "collector:4317"
				c.Observability.OTelServiceName = "analytics-server"
				c.Observability.OTelSampleRatio = 1.5
			},
			wantErr: "sample ratio must be between 0 and 1",
		},
		{
			name:    "zero rate limit window",
			mutate:  func(c *Config) { c.RateLimit.Window = 0 },
			wantErr: "invalid rate limit",
		},
		{
			name: "rate limit disabled",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.Window = 0
			},
		},
		{
			name:    "bad warmer schedule",
			mutate:  func(c *Config) { c.Warmer.TemplateSchedule = "every five minutes" },
			wantErr: "invalid template warmer schedule",
		},
		{
			name:    "bad warmer tenant",
			mutate:  func(c *Config) { c.Warmer.Tenants = []string{"org:1"} },
			wantErr: "invalid warmer tenant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"THORBIS_PORT":           "8080",
				"THORBIS_HEALTH_PORT":    "9090",
				"THORBIS_POSTGRES_URL":   "postgres://localhost/analytics",
				"THORBIS_WARMER_TENANTS": "org-1,org-2",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"THORBIS_PORT":         "8080",
				"THORBIS_HEALTH_PORT":  "8080",
				"THORBIS_POSTGRES_URL": "postgres://localhost/analytics",
			},
			wantErr: true,
		},
		{
			name:    "invalid config - no database",
			env:     map[string]string{"THORBIS_POSTGRES_URL": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
			if !tt.wantErr && len(cfg.Warmer.Tenants) != 2 {
				t.Errorf("Warmer.Tenants = %v, want 2 tenants", cfg.Warmer.Tenants)
			}
		})
	}
}
