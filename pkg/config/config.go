// Package config loads server configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/onecrazygenius/bailo/pkg/notify"
)

// AppConfig describes how human-facing URLs are built.
type AppConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// BaseURL returns the externally visible base URL of the application.
func (a AppConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", a.Protocol, a.Host, a.Port)
}

// RegistryConfig describes the embedded registry-auth endpoint.
type RegistryConfig struct {
	// Service is the registry service identifier presented by clients.
	Service string `yaml:"service"`
	// Issuer is the iss claim of issued tokens.
	Issuer string `yaml:"issuer"`
	// KeyPath is the PEM private signing key.
	KeyPath string `yaml:"keyPath"`
	// CertPath is the matching X.509 public certificate.
	CertPath string `yaml:"certPath"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Config is the full server configuration.
type Config struct {
	App       AppConfig         `yaml:"app"`
	Registry  RegistryConfig    `yaml:"registry"`
	Database  DatabaseConfig    `yaml:"database"`
	SMTP      notify.SMTPConfig `yaml:"smtp"`
	Directory struct {
		Path string `yaml:"path"`
	} `yaml:"directory"`
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		App: AppConfig{
			Protocol: "http",
			Host:     "localhost",
			Port:     8080,
		},
		Registry: RegistryConfig{
			Service:  "RegistryAuth",
			Issuer:   "bailo",
			KeyPath:  "certs/key.pem",
			CertPath: "certs/cert.pem",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "bailo.db",
		},
		Listen: ":8080",
	}
	cfg.Directory.Path = "directory.yaml"
	return cfg
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies BAILO_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from BAILO_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("BAILO_LISTEN", &cfg.Listen)
	setString("BAILO_APP_PROTOCOL", &cfg.App.Protocol)
	setString("BAILO_APP_HOST", &cfg.App.Host)
	if v := os.Getenv("BAILO_APP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.App.Port = n
		}
	}
	setString("BAILO_REGISTRY_SERVICE", &cfg.Registry.Service)
	setString("BAILO_REGISTRY_ISSUER", &cfg.Registry.Issuer)
	setString("BAILO_REGISTRY_KEY_PATH", &cfg.Registry.KeyPath)
	setString("BAILO_REGISTRY_CERT_PATH", &cfg.Registry.CertPath)
	setString("BAILO_DB_DRIVER", &cfg.Database.Driver)
	setString("BAILO_DB_DSN", &cfg.Database.DSN)
	setString("BAILO_DIRECTORY_PATH", &cfg.Directory.Path)
	setString("BAILO_SMTP_HOST", &cfg.SMTP.Host)
	if v := os.Getenv("BAILO_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SMTP.Port = n
		}
	}
	setString("BAILO_SMTP_FROM", &cfg.SMTP.From)
	setString("BAILO_SMTP_USER", &cfg.SMTP.User)
	setString("BAILO_SMTP_PASS", &cfg.SMTP.Pass)
}
