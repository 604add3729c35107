// Package config loads the server configuration from the environment.
//
// Values come from, in increasing priority: built-in defaults, an optional
// .env file, and process environment variables. Every key has a default
// registered with viper, which is also what makes AutomaticEnv pick it up
// during Unmarshal.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Port        int    `mapstructure:"PORT"        validate:"min=1,max=65535"`
	Environment string `mapstructure:"ENVIRONMENT" validate:"oneof=development production test"`

	// DatabaseURL is a SQLite path (or ":memory:") or a postgres:// URL.
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"  validate:"required,min=32"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL" validate:"gt=0"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"  validate:"required,min=20"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"    validate:"required"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL" validate:"omitempty,url"`

	GenerationTimeout time.Duration `mapstructure:"GENERATION_TIMEOUT" validate:"gt=0"`
	PendingTimeout    time.Duration `mapstructure:"PENDING_TIMEOUT"    validate:"gt=0"`
	CleanupInterval   time.Duration `mapstructure:"CLEANUP_INTERVAL"   validate:"gt=0"`

	GenerateRatePerMinute float64 `mapstructure:"GENERATE_RATE_PER_MINUTE" validate:"gte=0"`
	GenerateBurst         int     `mapstructure:"GENERATE_BURST"           validate:"gte=1"`

	// CORSOrigins is a comma-separated list in the environment; "*" echoes
	// back any origin.
	CORSOrigins []string `mapstructure:"CORS_ORIGIN" validate:"min=1"`

	ElectricURL    string `mapstructure:"ELECTRIC_URL"    validate:"omitempty,url"`
	ElectricSecret string `mapstructure:"ELECTRIC_SECRET"`

	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET" validate:"required_with=GitHubClientID"`
	GitHubCallbackURL  string `mapstructure:"GITHUB_CALLBACK_URL"  validate:"omitempty,url"`

	StaticDir string `mapstructure:"STATIC_DIR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"  validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
}

var defaults = map[string]any{
	"PORT":                     3000,
	"ENVIRONMENT":              EnvDevelopment,
	"DATABASE_URL":             "data/jokebox.db",
	"JWT_SECRET":               "",
	"SESSION_TTL":              "168h",
	"OPENAI_API_KEY":           "",
	"OPENAI_MODEL":             "gpt-3.5-turbo",
	"OPENAI_BASE_URL":          "",
	"GENERATION_TIMEOUT":       "30s",
	"PENDING_TIMEOUT":          "2m",
	"CLEANUP_INTERVAL":         "15m",
	"GENERATE_RATE_PER_MINUTE": 10,
	"GENERATE_BURST":           3,
	"CORS_ORIGIN":              "*",
	"ELECTRIC_URL":             "",
	"ELECTRIC_SECRET":          "",
	"GITHUB_CLIENT_ID":         "",
	"GITHUB_CLIENT_SECRET":     "",
	"GITHUB_CALLBACK_URL":      "",
	"STATIC_DIR":               "",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "text",
}

// Load builds a validated Config. envFile may be empty; a missing file is
// not an error, so production can rely on real environment variables alone.
func Load(envFile string) (*Config, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := newValidator().Struct(&cfg); err != nil {
		return nil, describe(err)
	}
	return &cfg, nil
}

// LoadDatabaseURL resolves only DATABASE_URL, for tools that touch the
// database but never serve traffic and so have no secrets configured.
func LoadDatabaseURL(envFile string) (string, error) {
	v, err := newViper(envFile)
	if err != nil {
		return "", err
	}
	dsn := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if dsn == "" {
		return "", errors.New("config: DATABASE_URL is empty")
	}
	return dsn, nil
}

func newViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: checking %s: %w", envFile, err)
		}
	}
	v.AutomaticEnv()
	return v, nil
}

// IsProduction reports whether cookies must be Secure and logs terse.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GitHubEnabled reports whether the optional GitHub login is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// ElectricEnabled reports whether the shape proxy should be mounted.
func (c *Config) ElectricEnabled() bool {
	return c.ElectricURL != ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// splitList trims entries and drops empties; a .env value of "a, b" arrives
// as a single element or as ["a", " b"] depending on the source.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// describe turns validator output into one readable error naming every
// offending environment variable.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid environment: %s", strings.Join(msgs, "; "))
}
