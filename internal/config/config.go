package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	App     AppConfig     `toml:"app"`
	Backend BackendConfig `toml:"backend"`
	Screen  ScreenConfig  `toml:"screen"`
	Session SessionConfig `toml:"session"`
	Redis   RedisConfig   `toml:"redis"`
	Log     LogConfig     `toml:"log"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	// SkipWarningHeader is sent with value "true" to get past tunnel interstitial pages.
	SkipWarningHeader string `toml:"skip_warning_header"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

type ScreenConfig struct {
	InitialDocumentID       int    `toml:"initial_document_id"`
	InitialDocumentFilename string `toml:"initial_document_filename"`
	Store                   string `toml:"store"`
	TTLSeconds              int    `toml:"ttl_seconds"`
}

type SessionConfig struct {
	Secret     string `toml:"secret"`
	TTLMinutes int    `toml:"ttl_minutes"`
	CookieName string `toml:"cookie_name"`
	Secure     bool   `toml:"secure"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// DefaultSessionSecret is only good for local runs; Validate refuses it in production.
const DefaultSessionSecret = "change-me-in-production"

// Load reads defaults, then the TOML file, then .env and the environment.
// An empty path falls back to CONFIG_FILE or configs/config.toml.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := defaultConfig()

	configPath := path
	if configPath == "" {
		configPath = getEnv("CONFIG_FILE", "configs/config.toml")
	}
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file %s not found: %w", path, err)
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	switch c.Screen.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("screen.store must be %q or %q, got %q", StoreMemory, StoreRedis, c.Screen.Store)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.IsProduction() && c.Session.Secret == DefaultSessionSecret {
		return fmt.Errorf("session.secret must be changed from the default in %s", c.App.Env)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) ScreenTTL() time.Duration {
	return time.Duration(c.Screen.TTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "pdfchat",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Backend: BackendConfig{
			BaseURL:           "http://127.0.0.1:8000",
			SkipWarningHeader: "ngrok-skip-browser-warning",
			TimeoutSeconds:    0,
		},
		Screen: ScreenConfig{
			Store:      StoreMemory,
			TTLSeconds: 3600,
		},
		Session: SessionConfig{
			Secret:     DefaultSessionSecret,
			TTLMinutes: 24 * 60,
			CookieName: "pdfchat_session",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Backend.BaseURL = getEnv("BACKEND_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.SkipWarningHeader = getEnv("BACKEND_SKIP_WARNING_HEADER", cfg.Backend.SkipWarningHeader)
	cfg.Backend.TimeoutSeconds = getEnvAsInt("BACKEND_TIMEOUT_SECONDS", cfg.Backend.TimeoutSeconds)

	cfg.Screen.InitialDocumentID = getEnvAsInt("SCREEN_INITIAL_DOCUMENT_ID", cfg.Screen.InitialDocumentID)
	cfg.Screen.InitialDocumentFilename = getEnv("SCREEN_INITIAL_DOCUMENT_FILENAME", cfg.Screen.InitialDocumentFilename)
	cfg.Screen.Store = getEnv("SCREEN_STORE", cfg.Screen.Store)
	cfg.Screen.TTLSeconds = getEnvAsInt("SCREEN_TTL_SECONDS", cfg.Screen.TTLSeconds)

	cfg.Session.Secret = getEnv("SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.TTLMinutes = getEnvAsInt("SESSION_TTL_MINUTES", cfg.Session.TTLMinutes)
	cfg.Session.CookieName = getEnv("SESSION_COOKIE_NAME", cfg.Session.CookieName)
	cfg.Session.Secure = getEnvAsBool("SESSION_SECURE", cfg.Session.Secure)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
