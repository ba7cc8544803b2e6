package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "SPOTTER"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabaseDSN     = "spotter.db"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabaseDriver         string
	DatabaseDSN            string
	AuthSigningKey         string
	TokenTTL               time.Duration
	LogLevel               string
	StorageBucket          string
	StorageEndpoint        string
	StorageAccessKeyID     string
	StorageSecretAccessKey string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabaseDriver:         configViper.GetString("database.driver"),
		DatabaseDSN:            configViper.GetString("database.dsn"),
		AuthSigningKey:         configViper.GetString("auth.signing_secret"),
		TokenTTL:               time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LogLevel:               configViper.GetString("log.level"),
		StorageBucket:          configViper.GetString("storage.bucket"),
		StorageEndpoint:        configViper.GetString("storage.endpoint"),
		StorageAccessKeyID:     configViper.GetString("storage.access_key_id"),
		StorageSecretAccessKey: configViper.GetString("storage.secret_access_key"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// StorageConfigured reports whether object storage credentials are present.
// Media uploads and the media proxy are disabled when they are not.
func (c AppConfig) StorageConfigured() bool {
	return strings.TrimSpace(c.StorageBucket) != "" && strings.TrimSpace(c.StorageEndpoint) != ""
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch strings.TrimSpace(c.DatabaseDriver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	return nil
}
