package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/chess-session-api/internal/obslog"
	yaml "gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type AppConfig struct {
	HTTPAddr  string
	APIPrefix string

	StoreBackend string
	RedisURL     string
	SessionTTL   time.Duration

	DatabaseURL string
	LiveAddr    string

	ListLimit       int
	MaxBodyBytes    int
	RateLimitPerMin int

	// MessagesDir holds YAML overrides for API response texts.
	MessagesDir string

	Log obslog.Options
}

// fileConfig is the optional YAML file named by CHESS_CONFIG_FILE.
type fileConfig struct {
	HTTPAddr      string  `yaml:"http_addr"`
	APIPrefix     *string `yaml:"api_prefix"`
	StoreBackend  string  `yaml:"store_backend"`
	RedisURL      string  `yaml:"redis_url"`
	SessionTTLSec *int    `yaml:"session_ttl_sec"`
	DatabaseURL   string  `yaml:"database_url"`
	LiveAddr      string  `yaml:"live_addr"`
	ListLimit     int     `yaml:"list_limit"`
	MaxBodyBytes  int     `yaml:"max_body_bytes"`
	RateLimit     *int    `yaml:"rate_limit_per_min"`
	MessagesDir   string  `yaml:"messages_dir"`
	Log           struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		ToConsole *bool  `yaml:"to_console"`
		ToFile    *bool  `yaml:"to_file"`
		File      string `yaml:"file"`
		Caller    *bool  `yaml:"caller"`
	} `yaml:"log"`
}

// Load reads .env and .env.local from the working directory, then the
// optional YAML file, then the environment. Variables already set win.
func Load() (*AppConfig, error) {
	return load(".")
}

func load(dir string) (*AppConfig, error) {
	if err := loadDotenv(dir, ".env", ".env.local"); err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		HTTPAddr:        ":8080",
		APIPrefix:       "/api/v1",
		SessionTTL:      0,
		ListLimit:       20,
		MaxBodyBytes:    64 << 10,
		RateLimitPerMin: 60,
		Log: obslog.Options{
			Level:     "info",
			Format:    "json",
			ToConsole: true,
			File:      filepath.Join("logs", "chess-server.log"),
		},
	}

	if path := envStr("CHESS_CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendMemory
		if cfg.RedisURL != "" {
			cfg.StoreBackend = BackendRedis
		}
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis store backend")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.LiveAddr != "" && cfg.RedisURL == "" {
		return nil, errors.New("LIVE_ADDR requires REDIS_URL")
	}
	if cfg.ListLimit <= 0 || cfg.ListLimit > 100 {
		return nil, fmt.Errorf("CHESS_LIST_LIMIT must be between 1 and 100, got %d", cfg.ListLimit)
	}
	return cfg, nil
}

func loadDotenv(dir string, names ...string) error {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setStr(&cfg.HTTPAddr, fc.HTTPAddr)
	if fc.APIPrefix != nil {
		cfg.APIPrefix = *fc.APIPrefix
	}
	setStr(&cfg.StoreBackend, fc.StoreBackend)
	setStr(&cfg.RedisURL, fc.RedisURL)
	if fc.SessionTTLSec != nil && *fc.SessionTTLSec >= 0 {
		cfg.SessionTTL = time.Duration(*fc.SessionTTLSec) * time.Second
	}
	setStr(&cfg.DatabaseURL, fc.DatabaseURL)
	setStr(&cfg.LiveAddr, fc.LiveAddr)
	if fc.ListLimit != 0 {
		cfg.ListLimit = fc.ListLimit
	}
	if fc.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = fc.MaxBodyBytes
	}
	if fc.RateLimit != nil && *fc.RateLimit >= 0 {
		cfg.RateLimitPerMin = *fc.RateLimit
	}
	setStr(&cfg.MessagesDir, fc.MessagesDir)
	setStr(&cfg.Log.Level, fc.Log.Level)
	setStr(&cfg.Log.Format, fc.Log.Format)
	setStr(&cfg.Log.File, fc.Log.File)
	setBool(&cfg.Log.ToConsole, fc.Log.ToConsole)
	setBool(&cfg.Log.ToFile, fc.Log.ToFile)
	setBool(&cfg.Log.Caller, fc.Log.Caller)
	return nil
}

func applyEnv(cfg *AppConfig) error {
	if v := envStr("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT must be numeric: %q", v)
		}
		cfg.HTTPAddr = ":" + v
	}
	setStr(&cfg.HTTPAddr, envStr("HTTP_ADDR"))
	if v, ok := os.LookupEnv("API_PREFIX"); ok {
		cfg.APIPrefix = strings.TrimSpace(v)
	}
	setStr(&cfg.StoreBackend, envStr("STORE_BACKEND"))
	setStr(&cfg.RedisURL, envStr("REDIS_URL"))
	setStr(&cfg.DatabaseURL, envStr("DATABASE_URL"))
	setStr(&cfg.LiveAddr, envStr("LIVE_ADDR"))

	if v := envStr("CHESS_SESSION_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("CHESS_SESSION_TTL must be a non-negative number of seconds: %q", v)
		}
		cfg.SessionTTL = time.Duration(n) * time.Second
	}
	if v := envStr("CHESS_LIST_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHESS_LIST_LIMIT must be a number: %q", v)
		}
		cfg.ListLimit = n
	}
	if v := envStr("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	if v := envStr("RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("RATE_LIMIT_PER_MIN must be a non-negative number: %q", v)
		}
		cfg.RateLimitPerMin = n
	}

	setStr(&cfg.MessagesDir, envStr("MESSAGES_DIR"))

	setStr(&cfg.Log.Level, envStr("LOG_LEVEL"))
	setStr(&cfg.Log.Format, envStr("LOG_FORMAT"))
	setStr(&cfg.Log.File, envStr("LOG_FILE"))
	setBool(&cfg.Log.ToConsole, envBool("LOG_TO_CONSOLE"))
	setBool(&cfg.Log.ToFile, envBool("LOG_TO_FILE"))
	setBool(&cfg.Log.Caller, envBool("LOG_CALLER"))
	return nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func envStr(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envBool(key string) *bool {
	v := envStr(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
