// Package config loads gateway configuration from a YAML file and the
// environment. Environment variables win over the file; every key has
// a default so an empty deployment still starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amerfu/arbiter/internal/models"
)

const envPrefix = "ARBITER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Foundry  FoundryConfig  `mapstructure:"foundry"`
	Budget   BudgetConfig   `mapstructure:"budget"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CORS     CORSConfig     `mapstructure:"cors"`

	// Models seeds the registry at startup, before the foundry sync.
	Models []ModelSeed `mapstructure:"models"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type DatabaseConfig struct {
	// URL enables Postgres-backed budgets and usage persistence when
	// set; empty runs the gateway with in-memory budgets only.
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SeedDemoData    bool          `mapstructure:"seed_demo_data"`
}

type RedisConfig struct {
	// URL enables the budget cache and the async usage queue when set.
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	// SecretKey enables bearer auth on /v1 when set.
	SecretKey string `mapstructure:"secret_key"`
}

// UpstreamConfig points at the OpenAI-compatible endpoint the invoker
// calls. In front of a multi-vendor pool this is usually an edge proxy
// that fans model ids out to their vendors.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	OrgID   string        `mapstructure:"org_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FallbackConfig tunes the fail-open phase. Model may be overridden
// per process by the FALLBACK_MODEL environment variable.
type FallbackConfig struct {
	Model           string  `mapstructure:"model"`
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k"`
}

type FoundryConfig struct {
	// Enabled turns on the startup catalog sync.
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Domains []string      `mapstructure:"domains"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BudgetConfig struct {
	// CacheTTL bounds staleness of the redis budget cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// StaticLimits maps user id to budget for database-less runs.
	StaticLimits map[string]float64 `mapstructure:"static_limits"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// ModelSeed is one catalog entry in the config file. Tier is the
// lowercase tier name; healthy defaults to true.
type ModelSeed struct {
	ID              string  `mapstructure:"id"`
	Provider        string  `mapstructure:"provider"`
	Tier            string  `mapstructure:"tier"`
	InputCostPer1K  float64 `mapstructure:"cost_per_1k_input"`
	OutputCostPer1K float64 `mapstructure:"cost_per_1k_output"`
	Unhealthy       bool    `mapstructure:"unhealthy"`
	Domain          string  `mapstructure:"domain"`
}

// Definition converts a seed to a registry definition.
func (s ModelSeed) Definition() (models.ModelDefinition, error) {
	tier, err := models.ParseTier(s.Tier)
	if err != nil {
		return models.ModelDefinition{}, fmt.Errorf("model %q: %w", s.ID, err)
	}
	def := models.ModelDefinition{
		ID:              s.ID,
		Provider:        s.Provider,
		Tier:            tier,
		InputCostPer1K:  s.InputCostPer1K,
		OutputCostPer1K: s.OutputCostPer1K,
		Healthy:         !s.Unhealthy,
		Domain:          s.Domain,
	}
	if err := def.Validate(); err != nil {
		return models.ModelDefinition{}, err
	}
	return def, nil
}

// Load reads configuration. configPath may name a directory to search
// or be empty for the default search path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/arbiter")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown", "15s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.seed_demo_data", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.secret_key", "")

	v.SetDefault("upstream.base_url", "https://api.openai.com/v1")
	v.SetDefault("upstream.timeout", "60s")

	v.SetDefault("fallback.model", "azure/gpt-4o")
	v.SetDefault("fallback.input_cost_per_1k", 0.005)
	v.SetDefault("fallback.output_cost_per_1k", 0.015)

	v.SetDefault("foundry.enabled", false)
	v.SetDefault("foundry.timeout", "15s")

	v.SetDefault("budget.cache_ttl", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-User-ID"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Fallback.Model == "" {
		return fmt.Errorf("fallback.model must not be empty")
	}
	if c.Fallback.InputCostPer1K < 0 || c.Fallback.OutputCostPer1K < 0 {
		return fmt.Errorf("fallback costs must be non-negative")
	}
	if c.Foundry.Enabled && c.Foundry.BaseURL == "" {
		return fmt.Errorf("foundry.base_url required when foundry sync is enabled")
	}
	for _, seed := range c.Models {
		if _, err := seed.Definition(); err != nil {
			return fmt.Errorf("invalid model seed: %w", err)
		}
	}
	return nil
}

// SeedDefinitions converts the configured model list, assuming a
// validated config.
func (c *Config) SeedDefinitions() ([]models.ModelDefinition, error) {
	defs := make([]models.ModelDefinition, 0, len(c.Models))
	for _, seed := range c.Models {
		def, err := seed.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
