package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the journal.
type Config struct {
	Env         string      `mapstructure:"env"`
	Debug       bool        `mapstructure:"debug"`
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Auth        Auth        `mapstructure:"auth"`
	Journal     Journal     `mapstructure:"journal"`
	Idempotency Idempotency `mapstructure:"idempotency"`
}

// Server holds the configuration for the HTTP server.
type Server struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Auth holds the token signing configuration.
type Auth struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Journal holds journal presentation defaults.
type Journal struct {
	Timezone      string `mapstructure:"timezone"`
	MaxImportRows int    `mapstructure:"max_import_rows"`
}

// Idempotency controls how long create keys are remembered.
type Idempotency struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// IsProduction reports whether pretty console logging should be disabled.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves the default journal time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Journal.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("debug", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.dsn", "journal.db")
	v.SetDefault("auth.jwt_secret", "klear-secret-key")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("journal.timezone", "UTC")
	v.SetDefault("journal.max_import_rows", 5000)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.sweep_interval", 5*time.Minute)
}

// LoadConfig reads configuration from an optional config file in path and
// from JOURNAL_* environment variables. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix("journal")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
