package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the web front-end.
type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		TemplateDir  string `yaml:"template_dir"`
		StaticDir    string `yaml:"static_dir"`
		SecureCookie bool   `yaml:"secure_cookie"`
	} `yaml:"server"`

	Session struct {
		DBPath        string        `yaml:"db_path"`
		TTL           time.Duration `yaml:"ttl"`
		PurgeInterval time.Duration `yaml:"purge_interval"`
	} `yaml:"session"`

	API struct {
		BaseURL        string        `yaml:"base_url"`
		AuthURL        string        `yaml:"auth_url"`
		CryptoURL      string        `yaml:"crypto_url"`
		AdminURL       string        `yaml:"admin_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		SigningKey     string        `yaml:"identity_signing_key"`
	} `yaml:"api"`

	Trade struct {
		Contact string `yaml:"contact"`
	} `yaml:"trade"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.TemplateDir = "web/templates"
	cfg.Server.StaticDir = "web/static"
	cfg.Session.DBPath = "sessions.db"
	cfg.Session.TTL = 30 * 24 * time.Hour
	cfg.Session.PurgeInterval = time.Hour
	cfg.API.BaseURL = "http://127.0.0.1:9000"
	cfg.Trade.Contact = "@platform_support"
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/crypto-platform.log"
	return cfg
}

// Load reads an optional .env file, an optional YAML file named by
// CONFIG_FILE, and then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overrideWithEnv()
	cfg.fillEndpoints()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overrideWithEnv() {
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.TemplateDir = getEnvOrDefault("TEMPLATE_DIR", c.Server.TemplateDir)
	c.Server.StaticDir = getEnvOrDefault("STATIC_DIR", c.Server.StaticDir)
	c.Server.SecureCookie = getEnvBoolOrDefault("SECURE_COOKIE", c.Server.SecureCookie)

	c.Session.DBPath = getEnvOrDefault("DB_PATH", c.Session.DBPath)
	c.Session.TTL = getEnvDurationOrDefault("SESSION_TTL", c.Session.TTL)
	c.Session.PurgeInterval = getEnvDurationOrDefault("SESSION_PURGE_INTERVAL", c.Session.PurgeInterval)

	c.API.BaseURL = getEnvOrDefault("API_BASE_URL", c.API.BaseURL)
	c.API.AuthURL = getEnvOrDefault("AUTH_URL", c.API.AuthURL)
	c.API.CryptoURL = getEnvOrDefault("CRYPTO_URL", c.API.CryptoURL)
	c.API.AdminURL = getEnvOrDefault("ADMIN_URL", c.API.AdminURL)
	c.API.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", c.API.RequestTimeout)
	c.API.SigningKey = getEnvOrDefault("IDENTITY_SIGNING_KEY", c.API.SigningKey)

	c.Trade.Contact = getEnvOrDefault("TRADE_CONTACT", c.Trade.Contact)

	c.Logging.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", c.Logging.Level))
	c.Logging.File = getEnvOrDefault("LOG_FILE", c.Logging.File)
}

// fillEndpoints derives any unset endpoint from the base URL.
func (c *Config) fillEndpoints() {
	base := strings.TrimRight(c.API.BaseURL, "/")
	if c.API.AuthURL == "" {
		c.API.AuthURL = base + "/auth"
	}
	if c.API.CryptoURL == "" {
		c.API.CryptoURL = base + "/crypto"
	}
	if c.API.AdminURL == "" {
		c.API.AdminURL = base + "/admin"
	}
}

// UseBaseURL points every endpoint at base, discarding per-endpoint overrides.
func (c *Config) UseBaseURL(base string) {
	c.API.BaseURL = base
	c.API.AuthURL, c.API.CryptoURL, c.API.AdminURL = "", "", ""
	c.fillEndpoints()
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"auth url":   c.API.AuthURL,
		"crypto url": c.API.CryptoURL,
		"admin url":  c.API.AdminURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.Server.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.PurgeInterval <= 0 {
		return fmt.Errorf("session purge interval must be positive")
	}
	if c.API.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
