package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents storefront configuration loaded from YAML.
type FileConfig struct {
	Port                string `yaml:"port"`
	LogLevel            string `yaml:"logLevel"`
	StoreAPIURL         string `yaml:"storeApiURL"`
	CurrencyCatalogPath string `yaml:"currencyCatalogPath"`
	DefaultCurrency     string `yaml:"defaultCurrency"`

	// Local durable cache: file-backed by default, Redis when an
	// address is configured.
	CacheDir      string `yaml:"cacheDir"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	RetryAttempts  int `yaml:"retryAttempts"`
	RetryTimeoutMs int `yaml:"retryTimeoutMs"`
	RetryBackoffMs int `yaml:"retryBackoffMs"`

	MirrorConcurrency int `yaml:"mirrorConcurrency"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_STORE_API_URL"); v != "" {
		cfg.StoreAPIURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_CURRENCY_CATALOG"); v != "" {
		cfg.CurrencyCatalogPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_CACHE_DIR"); v != "" {
		cfg.CacheDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STOREFRONT_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryAttempts = n
		}
	}
	if v := os.Getenv("STOREFRONT_MIRROR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MirrorConcurrency = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.StoreAPIURL == "" {
		return errors.New("config: storeApiURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.CurrencyCatalogPath) == "" {
		return errors.New("config: currencyCatalogPath is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.CacheDir) == "" && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: either cacheDir or redisAddr is required for the durable cart cache")
	}
	if cfg.RetryAttempts < 0 || cfg.RetryTimeoutMs < 0 || cfg.RetryBackoffMs < 0 {
		return errors.New("config: retry settings must be >= 0")
	}
	return nil
}
