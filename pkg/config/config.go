// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opsforge/gatehouse/pkg/session"
)

// ServerConfig holds HTTP server configuration shared by both services.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// CredsConfig holds credential database configuration.
type CredsConfig struct {
	Driver string // "sqlite3" or "postgres"
	DSN    string
}

// GatehouseConfig is the full configuration of the token authority.
type GatehouseConfig struct {
	Server ServerConfig
	Creds  CredsConfig
	Redis  session.RedisConfig

	// SessionTTL is the absolute session lifetime, fixed at issuance.
	SessionTTL time.Duration
	// MonitorInterval is the active-session monitor poll interval.
	MonitorInterval time.Duration

	// CRMBaseURL is where a successful login redirects to.
	CRMBaseURL string

	// SecureCookie marks the session cookie Secure. Off by default so the
	// stack works over plain HTTP in development.
	SecureCookie bool

	LogLevel string
}

// LoadGatehouse loads the authority configuration from the environment.
func LoadGatehouse() (*GatehouseConfig, error) {
	cfg := &GatehouseConfig{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "5000"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Creds: CredsConfig{
			Driver: getEnv("GATEHOUSE_CREDS_DRIVER", "sqlite3"),
			DSN:    getEnv("GATEHOUSE_CREDS_DSN", "auth.db"),
		},
		Redis: session.RedisConfig{
			URL:        getEnv("GATEHOUSE_REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
			DB:         getEnvInt("GATEHOUSE_REDIS_DB", 0),
			MaxRetries: getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 10),
		},
		SessionTTL:      getEnvDuration("GATEHOUSE_SESSION_TTL", 60*time.Second),
		MonitorInterval: getEnvDuration("GATEHOUSE_MONITOR_INTERVAL", 5*time.Second),
		CRMBaseURL:      getEnv("GATEHOUSE_CRM_URL", "http://localhost:5001"),
		SecureCookie:    getEnvBool("GATEHOUSE_SECURE_COOKIE", false),
		LogLevel:        getEnv("GATEHOUSE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *GatehouseConfig) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Creds.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid credential driver: %s (must be sqlite3 or postgres)", c.Creds.Driver)
	}
	if c.Creds.DSN == "" {
		return fmt.Errorf("credential DSN is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	return nil
}

// OrdersConfig holds order store configuration for the CRM service.
type OrdersConfig struct {
	Backend       string // "mongo" or "memory"
	MongoURI      string
	MongoDatabase string
}

// CRMConfig is the full configuration of the downstream CRM service.
type CRMConfig struct {
	Server ServerConfig
	Orders OrdersConfig

	// AuthServiceURL is the inner address used for validation calls.
	AuthServiceURL string
	// AuthLoginURL is the public login page the browser is redirected to
	// when a request is not authenticated.
	AuthLoginURL string
	// ValidateTimeout bounds each validation call.
	ValidateTimeout time.Duration

	LogLevel string
}

// LoadCRM loads the CRM configuration from the environment.
func LoadCRM() (*CRMConfig, error) {
	authURL := getEnv("CRM_AUTH_SERVICE_URL", "http://localhost:5000")

	cfg := &CRMConfig{
		Server: ServerConfig{
			Host:            getEnv("CRM_HOST", "0.0.0.0"),
			Port:            getEnv("CRM_PORT", "5001"),
			ReadTimeout:     getEnvDuration("CRM_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CRM_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CRM_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CRM_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Orders: OrdersConfig{
			Backend:       getEnv("CRM_ORDERS_BACKEND", "mongo"),
			MongoURI:      getEnv("CRM_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("CRM_MONGO_DB", "crm"),
		},
		AuthServiceURL:  authURL,
		AuthLoginURL:    getEnv("CRM_AUTH_LOGIN_URL", authURL+"/login"),
		ValidateTimeout: getEnvDuration("CRM_VALIDATE_TIMEOUT", time.Second),
		LogLevel:        getEnv("CRM_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *CRMConfig) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.AuthServiceURL == "" {
		return fmt.Errorf("auth service URL is required")
	}
	if c.ValidateTimeout <= 0 {
		return fmt.Errorf("validate timeout must be positive")
	}

	switch c.Orders.Backend {
	case "mongo":
		if c.Orders.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for mongo backend")
		}
		if c.Orders.MongoDatabase == "" {
			return fmt.Errorf("mongo database is required for mongo backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid orders backend: %s (must be mongo or memory)", c.Orders.Backend)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
