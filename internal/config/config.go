package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/sentrydns/classifierd/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Capture
	CaptureInterface string `koanf:"capture_interface"`

	// Redis-compatible cache backend
	RedisAddr        string        `koanf:"redis_addr"`
	RedisPassword    string        `koanf:"redis_password"`
	RedisDB          int           `koanf:"redis_db"`
	RedisDialTimeout time.Duration `koanf:"redis_dial_timeout"`

	// Cache policy
	CacheMaxSize  int           `koanf:"cache_max_size"`
	TTLFake       time.Duration `koanf:"ttl_fake"`
	TTLPend       time.Duration `koanf:"ttl_pend"`
	TTLFullPermit time.Duration `koanf:"ttl_full_permit"`
	TTLFullDrop   time.Duration `koanf:"ttl_full_drop"`

	// Classifier. spec.md's Non-goals exclude authenticated transport to
	// the classifier, so no credential field lives here — only the URL.
	ClassifierURL string `koanf:"classifier_url"`

	// Reporting
	ReportThreshold int           `koanf:"report_threshold"`
	MaxRetryCount   int           `koanf:"max_retry_count"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	StatsInterval   time.Duration `koanf:"stats_interval"`

	// Worker pool
	PoolWorkers    int `koanf:"pool_workers"`
	PoolQueueDepth int `koanf:"pool_queue_depth"`

	// Operational
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsAddr    string `koanf:"metrics_addr"`
	HealthAddr     string `koanf:"health_addr"`
}

// TTLTable builds the cache's TTL policy from the configured overrides.
func (c *Config) TTLTable() domain.TTLTable {
	return domain.TTLTable{
		Fake:       c.TTLFake,
		Pend:       c.TTLPend,
		FullPermit: c.TTLFullPermit,
		FullDrop:   c.TTLFullDrop,
	}
}

// sanitise removes a single layer of matching surrounding quotes from all
// string fields. This normalises values from Docker --env-file which does
// not strip shell quoting.
func (c *Config) sanitise() {
	c.CaptureInterface = stripEnvQuotes(c.CaptureInterface)
	c.RedisAddr = stripEnvQuotes(c.RedisAddr)
	c.RedisPassword = stripEnvQuotes(c.RedisPassword)
	c.ClassifierURL = stripEnvQuotes(c.ClassifierURL)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.HealthAddr = stripEnvQuotes(c.HealthAddr)
}

// defaults sets sensible default values, including the TTL table from
// spec.md §4.2.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"redis_addr":          "127.0.0.1:6379",
		"redis_db":            0,
		"redis_dial_timeout":  "5s",
		"cache_max_size":      100000,
		"ttl_fake":            "300s",
		"ttl_pend":            "600s",
		"ttl_full_permit":     "86400s",
		"ttl_full_drop":       "3600s",
		"report_threshold":    5,
		"max_retry_count":     3,
		"retry_delay":         "5s",
		"stats_interval":      "1h",
		"pool_workers":        4,
		"pool_queue_depth":    4096,
		"log_level":           "info",
		"log_format":          "json",
		"metrics_enabled":     true,
		"metrics_addr":        ":9090",
		"health_addr":         ":8081",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or
// double quotes from s. This normalises values set via Docker --env-file,
// which does not strip shell quoting. Only symmetric pairs are stripped:
// 'x' → x, "x" → x. Unpaired or mismatched quotes are left as-is.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE
// secret injection.
func Load() (*Config, error) {
	// Use "." as delimiter so that env vars with "_" in their names are
	// treated as flat keys, not nested paths. E.g. REDIS_ADDR → "redis_addr"
	// maps to struct tag koanf:"redis_addr" without any nesting.
	k := koanf.New(".")

	defs := defaults()
	if err := k.Load(&rawProvider{data: defs}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.ClassifierURL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}
	if !strings.HasPrefix(c.ClassifierURL, "http://") && !strings.HasPrefix(c.ClassifierURL, "https://") {
		return fmt.Errorf("CLASSIFIER_URL must start with http:// or https://; got %q", c.ClassifierURL)
	}

	if c.CacheMaxSize < 1 {
		return fmt.Errorf("CACHE_MAX_SIZE must be >= 1; got %d", c.CacheMaxSize)
	}
	for _, pair := range []struct {
		name string
		d    time.Duration
	}{
		{"TTL_FAKE", c.TTLFake},
		{"TTL_PEND", c.TTLPend},
		{"TTL_FULL_PERMIT", c.TTLFullPermit},
		{"TTL_FULL_DROP", c.TTLFullDrop},
	} {
		if pair.d <= 0 {
			return fmt.Errorf("%s must be > 0; got %s", pair.name, pair.d)
		}
	}

	if c.ReportThreshold < 1 {
		return fmt.Errorf("REPORT_THRESHOLD must be >= 1; got %d", c.ReportThreshold)
	}
	if c.MaxRetryCount < 1 {
		return fmt.Errorf("MAX_RETRY_COUNT must be >= 1; got %d", c.MaxRetryCount)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("RETRY_DELAY must be > 0; got %s", c.RetryDelay)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be > 0; got %s", c.StatsInterval)
	}

	if c.PoolWorkers < 1 || c.PoolWorkers > 64 {
		return fmt.Errorf("POOL_WORKERS must be 1-64; got %d", c.PoolWorkers)
	}
	if c.PoolQueueDepth < 1 {
		return fmt.Errorf("POOL_QUEUE_DEPTH must be >= 1; got %d", c.PoolQueueDepth)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
var fileSecretKeys = []string{
	"redis_password",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
