package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"forestlog/internal/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseDriver     string        `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	Port               string        `mapstructure:"PORT"`
	CORSOrigin         string        `mapstructure:"CORS_ORIGIN"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RateLimitPerMinute int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	DefaultTimezone    string        `mapstructure:"DEFAULT_TIMEZONE"`
	LevelsFile         string        `mapstructure:"LEVELS_FILE"`
	StoreTimeout       time.Duration `mapstructure:"STORE_TIMEOUT"`
	MaxRetries         int           `mapstructure:"MAX_RETRIES"`
	TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"DATABASE_DRIVER":       "sqlite",
	"DATABASE_URL":          "forestlog.db",
	"JWT_SECRET":            "",
	"PORT":                  "8080",
	"CORS_ORIGIN":           "",
	"REDIS_ADDR":            "",
	"RATE_LIMIT_PER_MINUTE": 30,
	"DEFAULT_TIMEZONE":      "UTC",
	"LEVELS_FILE":           "",
	"STORE_TIMEOUT":         "5s",
	"MAX_RETRIES":           3,
	"TOKEN_TTL":             "24h",
	"LOG_LEVEL":             "info",
}

// Load reads configuration from the environment, after loading envFile if it exists.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := db.ParseDialect(c.DatabaseDriver); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("MAX_RETRIES must be at least 1")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// ValidateForServe checks the settings only the HTTP server needs.
func (c Config) ValidateForServe() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

func (c Config) Dialect() db.Dialect {
	d, _ := db.ParseDialect(c.DatabaseDriver)
	return d
}

func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
