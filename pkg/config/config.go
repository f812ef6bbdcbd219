package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ledger service
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Entity store configuration
	Store StoreConfig `mapstructure:"store"`

	// Access-log archive configuration
	Archive ArchiveConfig `mapstructure:"archive"`

	// Escrow configuration
	Escrow EscrowConfig `mapstructure:"escrow"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// StoreConfig selects and configures the entity store backend
type StoreConfig struct {
	// Backend is "memory" or "leveldb"
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ArchiveConfig configures the optional Postgres mirror of the access log
type ArchiveConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// EscrowConfig holds escrow vault configuration. InitialBalances seeds the
// in-memory development vault only; production custody is external.
type EscrowConfig struct {
	InitialBalances map[string]uint64 `mapstructure:"initial_balances"`
}

// Load reads configuration from medilock.yaml and MEDILOCK_* env vars
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("medilock")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/medilock")

	v.SetEnvPrefix("MEDILOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env take over
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.idle_timeout", 60)

	v.SetDefault("store.backend", "leveldb")
	v.SetDefault("store.path", "data/ledger")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.database.host", "localhost")
	v.SetDefault("archive.database.port", 5432)
	v.SetDefault("archive.database.name", "medilock")
	v.SetDefault("archive.database.user", "medilock")
	v.SetDefault("archive.database.ssl_mode", "disable")
	v.SetDefault("archive.database.max_open_conns", 10)
	v.SetDefault("archive.database.max_idle_conns", 5)
	v.SetDefault("archive.database.conn_max_lifetime", 300)

	v.SetDefault("log_level", "info")
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "memory", "leveldb":
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "leveldb" && cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required for the leveldb backend")
	}
	return nil
}
