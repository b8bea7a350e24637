package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Tournament API
	APIBaseURL              string        `mapstructure:"API_BASE_URL"`
	APITimeout              time.Duration `mapstructure:"API_TIMEOUT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"CIRCUIT_BREAKER_TIMEOUT"`

	// Simulator form
	DefaultRuns      int `mapstructure:"DEFAULT_RUNS"`
	MinSuggestedRuns int `mapstructure:"MIN_SUGGESTED_RUNS"`
	MaxSuggestedRuns int `mapstructure:"MAX_SUGGESTED_RUNS"`

	// View sessions
	SessionStore         string        `mapstructure:"SESSION_STORE"` // "memory", "redis"
	RedisURL             string        `mapstructure:"REDIS_URL"`
	SessionIdleTTL       time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	SessionSweepSchedule string        `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	NotificationLimit    int           `mapstructure:"NOTIFICATION_LIMIT"`

	// Action throttling
	ActionRateLimit float64 `mapstructure:"ACTION_RATE_LIMIT"`
	ActionRateBurst int     `mapstructure:"ACTION_RATE_BURST"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`
}

// SetDefaults registers every key with its default so that AutomaticEnv can
// resolve it during Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_FORMAT", "")

	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("API_TIMEOUT", "0s") // no client-side timeout
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT", "30s")

	v.SetDefault("DEFAULT_RUNS", 200)
	v.SetDefault("MIN_SUGGESTED_RUNS", 10)
	v.SetDefault("MAX_SUGGESTED_RUNS", 5000)

	v.SetDefault("SESSION_STORE", "memory")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("SESSION_IDLE_TTL", "2h")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 10m")
	v.SetDefault("NOTIFICATION_LIMIT", 5)

	v.SetDefault("ACTION_RATE_LIMIT", 2.0)
	v.SetDefault("ACTION_RATE_BURST", 5)

	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
}

// LoadConfig reads .env from the working directory or its parent, then the environment
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	return load(v)
}

// LoadConfigFile reads the given env-format file, then the environment
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := v.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	config.APIBaseURL = strings.TrimSuffix(config.APIBaseURL, "/")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the dashboard cannot start with
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL must be set")
	}
	if c.DefaultRuns <= 0 {
		return fmt.Errorf("DEFAULT_RUNS must be positive, got %d", c.DefaultRuns)
	}
	if c.MinSuggestedRuns > c.MaxSuggestedRuns {
		return fmt.Errorf("MIN_SUGGESTED_RUNS (%d) exceeds MAX_SUGGESTED_RUNS (%d)", c.MinSuggestedRuns, c.MaxSuggestedRuns)
	}
	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	if c.APITimeout < 0 {
		return fmt.Errorf("API_TIMEOUT must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
