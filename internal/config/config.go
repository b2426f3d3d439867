package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from the environment
// with viper. A .env file in the working directory is honored when present.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Spoonacular SpoonacularConfig `mapstructure:"spoonacular"`
	Cache       CacheConfig       `mapstructure:"cache"`
	CORS        CORSConfig        `mapstructure:"cors"`
	LogLevel    string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	TokenSecret   string        `mapstructure:"token_secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
}

type SpoonacularConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("auth.token_secret", "TOKEN_SECRET")
	viper.BindEnv("auth.token_duration", "TOKEN_DURATION")
	viper.BindEnv("spoonacular.base_url", "SPOONACULAR_BASE_URL")
	viper.BindEnv("spoonacular.api_key", "SPOONACULAR_API_KEY")
	viper.BindEnv("cache.enabled", "CACHE_ENABLED")
	viper.BindEnv("cache.redis_addr", "REDIS_ADDR")
	viper.BindEnv("cache.ttl", "CACHE_TTL")
	viper.BindEnv("cors.allow_origins", "CORS_ALLOW_ORIGINS")
	viper.BindEnv("log_level", "LOG_LEVEL")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("auth.token_duration", "720h")

	viper.SetDefault("spoonacular.base_url", "https://api.spoonacular.com")
	viper.SetDefault("spoonacular.timeout", "15s")

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_addr", "localhost:6379")
	viper.SetDefault("cache.ttl", "10m")

	viper.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})

	viper.SetDefault("log_level", "info")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if cfg.Spoonacular.APIKey == "" {
		return fmt.Errorf("SPOONACULAR_API_KEY is required")
	}
	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl")
	}
	return nil
}
