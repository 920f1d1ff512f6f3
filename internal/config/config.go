package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Provider ProviderConfig
	Enhancer EnhancerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	ProxyRotation         bool
	MaxProxyRetries       int
	RandomizeFingerprint  bool
	DelayMin              time.Duration
	DelayMax              time.Duration
	MaxConcurrentSessions int
	SolveCaptcha          bool
	CaptchaTimeout        time.Duration
	RequestTimeout        time.Duration
	MaxRetries            int
	Proxies               []string
	UserAgents            []string
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

// ProviderConfig holds per-platform structured-data API settings. A provider
// is consulted before any browser session is opened.
type ProviderConfig struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Platforms []string
}

// EnhancerConfig holds the optional text-generation settings.
type EnhancerConfig struct {
	Enabled   bool
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Workers   int
	QueueSize int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			ProxyRotation:         getBoolOrDefault("SCRAPER_PROXY_ROTATION", false),
			MaxProxyRetries:       getIntOrDefault("SCRAPER_MAX_PROXY_RETRIES", 3),
			RandomizeFingerprint:  getBoolOrDefault("SCRAPER_RANDOMIZE_FINGERPRINT", true),
			DelayMin:              getDurationOrDefault("SCRAPER_DELAY_MIN", 1*time.Second),
			DelayMax:              getDurationOrDefault("SCRAPER_DELAY_MAX", 3*time.Second),
			MaxConcurrentSessions: getIntOrDefault("SCRAPER_MAX_CONCURRENT_SESSIONS", 3),
			SolveCaptcha:          getBoolOrDefault("SCRAPER_SOLVE_CAPTCHA", true),
			CaptchaTimeout:        getDurationOrDefault("SCRAPER_CAPTCHA_TIMEOUT", 30*time.Second),
			RequestTimeout:        getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:            getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			Proxies:               getStringSliceOrDefault("SCRAPER_PROXIES", []string{}),
			UserAgents:            getStringSliceOrDefault("SCRAPER_USER_AGENTS", []string{}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Provider: ProviderConfig{
			APIKey:    getEnvOrDefault("PROVIDER_API_KEY", ""),
			BaseURL:   getEnvOrDefault("PROVIDER_BASE_URL", ""),
			Timeout:   getDurationOrDefault("PROVIDER_TIMEOUT", 15*time.Second),
			Platforms: getStringSliceOrDefault("PROVIDER_PLATFORMS", []string{}),
		},
		Enhancer: EnhancerConfig{
			Enabled:   getBoolOrDefault("ENHANCER_ENABLED", false),
			APIKey:    getEnvOrDefault("ENHANCER_API_KEY", ""),
			BaseURL:   getEnvOrDefault("ENHANCER_BASE_URL", ""),
			Model:     getEnvOrDefault("ENHANCER_MODEL", "gpt-4o-mini"),
			Timeout:   getDurationOrDefault("ENHANCER_TIMEOUT", 20*time.Second),
			Workers:   getIntOrDefault("ENHANCER_WORKERS", 2),
			QueueSize: getIntOrDefault("ENHANCER_QUEUE_SIZE", 100),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "product_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:scraped_products"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "basic"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxConcurrentSessions < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONCURRENT_SESSIONS must be at least 1")
	}

	if c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.MaxRetries < 0 || c.Scraper.MaxProxyRetries < 0 {
		return fmt.Errorf("retry counts cannot be negative")
	}

	if c.Enhancer.Enabled && c.Enhancer.Workers < 1 {
		return fmt.Errorf("ENHANCER_WORKERS must be at least 1 when enhancement is enabled")
	}

	switch c.Logging.Level {
	case "none", "basic", "detailed":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of none, basic, detailed")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
