package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Router        RouterConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	CatalogFile   string
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RouterConfig holds routing, cache and circuit breaker tuning
type RouterConfig struct {
	// MaxChainLength caps the fallback chain per request
	MaxChainLength int

	// CacheTTL applies to stored responses
	CacheTTL time.Duration

	// CacheMaxEntries bounds the response cache; 0 means unbounded
	CacheMaxEntries int

	// CircuitFailureThreshold opens a model's circuit after this many
	// consecutive failures
	CircuitFailureThreshold int

	// CircuitCooldown is the initial open duration
	CircuitCooldown time.Duration

	// CircuitCooldownCap bounds the doubled cooldown
	CircuitCooldownCap time.Duration

	// PerModelRetries is the retry count against the same model
	PerModelRetries int

	// BackoffSchedule delays same-model retries
	BackoffSchedule []time.Duration

	// AttemptTimeout bounds each upstream attempt
	AttemptTimeout time.Duration
}

// ProvidersConfig holds upstream provider configurations
type ProvidersConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
}

// ProviderConfig holds one provider's connection settings
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a Config by loading environment variables. A .env file is
// honored when present.
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		CatalogFile: getEnv("ROUTER_CATALOG_FILE", "catalog.yaml"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Router: RouterConfig{
			MaxChainLength:          getEnvAsInt("ROUTER_MAX_CHAIN_LENGTH", 3),
			CacheTTL:                getEnvAsDuration("ROUTER_CACHE_TTL", time.Hour),
			CacheMaxEntries:         getEnvAsInt("ROUTER_CACHE_MAX_ENTRIES", 0),
			CircuitFailureThreshold: getEnvAsInt("ROUTER_CIRCUIT_FAILURE_THRESHOLD", 3),
			CircuitCooldown:         getEnvAsDuration("ROUTER_CIRCUIT_COOLDOWN", 60*time.Second),
			CircuitCooldownCap:      getEnvAsDuration("ROUTER_CIRCUIT_COOLDOWN_CAP", 10*time.Minute),
			PerModelRetries:         getEnvAsInt("ROUTER_PER_MODEL_RETRIES", 1),
			BackoffSchedule:         getEnvAsDurationList("ROUTER_BACKOFF_SCHEDULE", []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}),
			AttemptTimeout:          getEnvAsDuration("ROUTER_ATTEMPT_TIMEOUT", 30*time.Second),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),
			},
			Anthropic: ProviderConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
				Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 30*time.Second),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Router.MaxChainLength < 1 {
		return fmt.Errorf("max chain length must be at least 1")
	}
	if c.Router.CircuitCooldownCap < c.Router.CircuitCooldown {
		return fmt.Errorf("circuit cooldown cap must be at least the initial cooldown")
	}
	if c.CatalogFile == "" {
		return fmt.Errorf("catalog file is required")
	}
	if c.IsProduction() {
		if c.Providers.OpenAI.APIKey == "" && c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("at least one provider must be configured in production")
		}
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationList parses a comma-separated duration list ("1s,2s,4s").
func getEnvAsDurationList(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}
