package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type DatabaseConfig struct {
	// Driver is memory, sqlite, or postgres.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func (d DatabaseConfig) IsMemory() bool {
	return d.Driver == "memory" || d.Driver == ""
}

type SchemaConfig struct {
	// Dir holds the *.json entity definitions loaded at startup.
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	TTL      time.Duration `mapstructure:"ttl"`
	Capacity int           `mapstructure:"capacity"`
}

type RetryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Max      int           `mapstructure:"max"`
	Base     time.Duration `mapstructure:"base"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Claims headers with this prefix merge into the execution context.
	ContextPrefix string `mapstructure:"context_prefix"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	LogPayloads bool   `mapstructure:"log_payloads"`
}

type SeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Counts maps entity names to how many records to generate.
	Counts map[string]int `mapstructure:"counts"`
}

func Load() (*Config, error) {
	viper.SetConfigName("dataplane")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("schema.dir", "./schemas")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "30s")
	viper.SetDefault("cache.capacity", 1000)
	viper.SetDefault("retry.enabled", true)
	viper.SetDefault("retry.max", 3)
	viper.SetDefault("retry.base", "100ms")
	viper.SetDefault("retry.max_delay", "5s")
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.context_prefix", "X-Ctx-")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.pretty", false)
	viper.SetDefault("logging.log_payloads", false)
	viper.SetDefault("seed.enabled", false)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
