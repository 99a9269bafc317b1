// Package config loads this host's runtime configuration: venue
// connectivity, logging, and the optional Vault/Postgres/Redis/admin-api
// wiring. Grounded on the reference codebase's config/config.go env-
// override pattern, scoped down from its dozen trading-feature configs
// to only what this host's components take as constructor arguments.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates every component's settings.
type Config struct {
	Venue      VenueConfig
	Bus        BusConfig
	ClockSync  ClockSyncConfig
	Logging    LoggingConfig
	Vault      VaultConfig
	Storage    StorageConfig
	InstanceLock InstanceLockConfig
	AdminAPI   AdminAPIConfig
}

// VenueConfig holds the exchange connection endpoints and default
// trading-channel credentials (local/dev convenience; production
// deployments resolve per-plugin credentials through Vault instead).
type VenueConfig struct {
	MarketWSBase string
	UserRESTBase string
	UserWSBase   string
	TradeWSURL   string
	APIKey       string
	SecretKey    string
}

// BusConfig sizes the broadcast channel. SyncQueueCapacity is loaded but
// not passed to any component; the supervisor's per-instance sync queue
// has a fixed capacity of 8192.
type BusConfig struct {
	Capacity           int
	SyncQueueCapacity  int
}

// ClockSyncConfig controls the venue time-offset resync cadence.
type ClockSyncConfig struct {
	ResyncInterval time.Duration
	RESTTimeURL    string
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string
	Output     string
	JSONFormat bool
}

// VaultConfig mirrors vaultsecrets.Config.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// StorageConfig mirrors storage.Config.
type StorageConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// InstanceLockConfig mirrors instancelock.Config.
type InstanceLockConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	PoolSize int
}

// AdminAPIConfig controls the admin HTTP surface.
type AdminAPIConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	TokenSecret    string
	TokenTTL       time.Duration
}

// Load builds a Config from environment variables, applying defaults for
// anything unset. There is no config-file layer; every deployment of
// this host is expected to be configured through its environment.
func Load() *Config {
	cfg := &Config{
		Venue: VenueConfig{
			MarketWSBase: getEnvOrDefault("TRADEHOST_MARKET_WS_BASE", "wss://fstream.binance.com/ws"),
			UserRESTBase: getEnvOrDefault("TRADEHOST_USER_REST_BASE", "https://fapi.binance.com"),
			UserWSBase:   getEnvOrDefault("TRADEHOST_USER_WS_BASE", "wss://fstream.binance.com/ws"),
			TradeWSURL:   getEnvOrDefault("TRADEHOST_TRADE_WS_URL", "wss://ws-fapi.binance.com/ws-fapi/v1"),
			APIKey:       getEnvOrDefault("TRADEHOST_API_KEY", ""),
			SecretKey:    getEnvOrDefault("TRADEHOST_SECRET_KEY", ""),
		},
		Bus: BusConfig{
			Capacity:          getEnvIntOrDefault("TRADEHOST_BUS_CAPACITY", 10000),
			SyncQueueCapacity: getEnvIntOrDefault("TRADEHOST_SYNC_QUEUE_CAPACITY", 8192),
		},
		ClockSync: ClockSyncConfig{
			ResyncInterval: getEnvDurationOrDefault("TRADEHOST_CLOCKSYNC_INTERVAL", 30*time.Minute),
			RESTTimeURL:    getEnvOrDefault("TRADEHOST_CLOCKSYNC_URL", "https://fapi.binance.com"),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("TRADEHOST_LOG_LEVEL", "INFO"),
			Output:     getEnvOrDefault("TRADEHOST_LOG_OUTPUT", "stdout"),
			JSONFormat: getEnvOrDefault("TRADEHOST_LOG_JSON", "true") == "true",
		},
		Vault: VaultConfig{
			Enabled:    getEnvOrDefault("TRADEHOST_VAULT_ENABLED", "false") == "true",
			Address:    getEnvOrDefault("TRADEHOST_VAULT_ADDR", "http://localhost:8200"),
			Token:      getEnvOrDefault("TRADEHOST_VAULT_TOKEN", ""),
			MountPath:  getEnvOrDefault("TRADEHOST_VAULT_MOUNT_PATH", "secret"),
			SecretPath: getEnvOrDefault("TRADEHOST_VAULT_SECRET_PATH", "tradehost/credentials"),
			TLSEnabled: getEnvOrDefault("TRADEHOST_VAULT_TLS_ENABLED", "false") == "true",
			CACert:     getEnvOrDefault("TRADEHOST_VAULT_CA_CERT", ""),
		},
		Storage: StorageConfig{
			Enabled:  getEnvOrDefault("TRADEHOST_STORAGE_ENABLED", "false") == "true",
			Host:     getEnvOrDefault("TRADEHOST_DB_HOST", "localhost"),
			Port:     getEnvIntOrDefault("TRADEHOST_DB_PORT", 5432),
			User:     getEnvOrDefault("TRADEHOST_DB_USER", "tradehost"),
			Password: getEnvOrDefault("TRADEHOST_DB_PASSWORD", ""),
			Database: getEnvOrDefault("TRADEHOST_DB_NAME", "tradehost"),
			SSLMode:  getEnvOrDefault("TRADEHOST_DB_SSLMODE", "disable"),
		},
		InstanceLock: InstanceLockConfig{
			Enabled:  getEnvOrDefault("TRADEHOST_REDIS_ENABLED", "false") == "true",
			Address:  getEnvOrDefault("TRADEHOST_REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("TRADEHOST_REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("TRADEHOST_REDIS_DB", 0),
			PoolSize: getEnvIntOrDefault("TRADEHOST_REDIS_POOL_SIZE", 10),
		},
		AdminAPI: AdminAPIConfig{
			Host:           getEnvOrDefault("TRADEHOST_ADMIN_HOST", "0.0.0.0"),
			Port:           getEnvIntOrDefault("TRADEHOST_ADMIN_PORT", 8090),
			ProductionMode: getEnvOrDefault("TRADEHOST_ADMIN_PRODUCTION", "false") == "true",
			TokenSecret:    getEnvOrDefault("TRADEHOST_ADMIN_TOKEN_SECRET", ""),
			TokenTTL:       getEnvDurationOrDefault("TRADEHOST_ADMIN_TOKEN_TTL", 12*time.Hour),
		},
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
