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
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath         = "CONFIG_PATH"
	EnvDotEnvPath         = "DOTENV_PATH"
	EnvDBConnection       = "DB_CONNECTION"
	EnvPort               = "PORT"
	EnvSessionTTL         = "SESSION_TTL"
	EnvLogLevel           = "LOG_LEVEL"
	EnvOpenAIKey          = "OPENAI_API_KEY"
	EnvOpenAIBaseURL      = "OPENAI_BASE_URL"
	EnvOpenAIModel        = "OPENAI_MODEL"
	EnvPolarWebhookSecret = "POLAR_WEBHOOK_SECRET"
	EnvPolarAccessToken   = "POLAR_ACCESS_TOKEN"
	EnvPolarAPIBase       = "POLAR_API_BASE"
	EnvRedisAddr          = "REDIS_ADDR"
	EnvRedisPassword      = "REDIS_PASSWORD"
)

// Defaults applied when the config omits a value.
const (
	DefaultPort              = 8080
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultAIModel           = "gpt-4o-mini"
	DefaultAITemperature     = 0.7
	DefaultChatMaxTokens     = 2000
	DefaultGenerateMaxTokens = 1500
	DefaultAITimeout         = 60 * time.Second
	DefaultPolarAPIBase      = "https://api.polar.sh"
	DefaultAwaitTimeout      = 2 * time.Minute
	DefaultAwaitMaxTimeout   = 5 * time.Minute
	DefaultRateLimitPrefix   = "inkwell:rl"
	DefaultRateLimitWindow   = time.Minute
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDotEnv loads variables from a .env file without overriding the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvDotEnvPath))
	}
	if path == "" {
		path = ".env"
	}
	if _, errStat := os.Stat(path); errors.Is(errStat, os.ErrNotExist) {
		return nil
	}
	if errLoad := godotenv.Load(path); errLoad != nil {
		return fmt.Errorf("load dotenv %s: %w", path, errLoad)
	}
	return nil
}

// Errors reported by Validate. Each names the setting that is missing.
var (
	// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file, or DB_CONNECTION)")
	// ErrMissingWebhookSecret indicates the billing webhook secret is absent.
	ErrMissingWebhookSecret = errors.New("missing billing webhook secret (set `billing.webhook-secret` or POLAR_WEBHOOK_SECRET)")
	// ErrMissingAIKey indicates the completion API key is absent.
	ErrMissingAIKey = errors.New("missing completion api key (set `ai.api-key` or OPENAI_API_KEY)")
	// ErrMissingBillingAPIKey indicates the billing API access token is absent.
	ErrMissingBillingAPIKey = errors.New("missing billing api key (set `billing.api-key` or POLAR_ACCESS_TOKEN)")
)

// Config is the full application configuration.
type Config struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed-origins"`

	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	AI        AIConfig        `yaml:"ai"`
	Billing   BillingConfig   `yaml:"billing"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
}

// SessionConfig controls session token lifetime.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LoggingConfig controls the logrus output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json".
	File       string `yaml:"file"`   // Optional rotating log file.
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// AIConfig holds completion API settings.
type AIConfig struct {
	APIKey            string        `yaml:"api-key"`
	BaseURL           string        `yaml:"base-url"`
	Model             string        `yaml:"model"`
	Temperature       float32       `yaml:"temperature"`
	ChatMaxTokens     int           `yaml:"chat-max-tokens"`
	GenerateMaxTokens int           `yaml:"generate-max-tokens"`
	Timeout           time.Duration `yaml:"timeout"`
}

// BillingConfig holds billing provider settings.
type BillingConfig struct {
	WebhookSecret       string        `yaml:"webhook-secret"`
	APIKey              string        `yaml:"api-key"`
	APIBase             string        `yaml:"api-base"`
	OrderingGuard       bool          `yaml:"ordering-guard"`
	RequireSubscription bool          `yaml:"require-subscription"`
	AwaitTimeout        time.Duration `yaml:"await-timeout"`
	AwaitMaxTimeout     time.Duration `yaml:"await-max-timeout"`
}

// RateLimitConfig holds per-user AI request limits.
type RateLimitConfig struct {
	FreeLimit       int           `yaml:"free-limit"`       // Requests per window without a subscription.
	SubscribedLimit int           `yaml:"subscribed-limit"` // Requests per window with a subscription.
	Window          time.Duration `yaml:"window"`           // Fixed window length.
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the optional redis limiter backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Load reads the YAML config file and applies environment overrides.
// A missing file yields defaults plus environment values.
func Load(configPath string) (Config, error) {
	// Seeded before parsing so an explicit zero temperature survives.
	cfg := Config{AI: AIConfig{Temperature: DefaultAITemperature}}
	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// DSN returns the resolved database DSN.
func (c Config) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Database.DSN)
}

// Validate fails fast when a setting required at startup is missing.
func (c Config) Validate() error {
	if c.DSN() == "" {
		return ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(c.Billing.WebhookSecret) == "" {
		return ErrMissingWebhookSecret
	}
	if errAI := c.AI.Validate(); errAI != nil {
		return errAI
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Validate reports whether the completion API can be called.
func (c AIConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAIKey
	}
	return nil
}

// ValidatePortal reports whether the customer portal can call the billing API.
func (c BillingConfig) ValidatePortal() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingBillingAPIKey
	}
	if strings.TrimSpace(c.APIBase) == "" {
		return fmt.Errorf("missing billing api base (set `billing.api-base` or %s)", EnvPolarAPIBase)
	}
	return nil
}

// PortalEnabled reports whether billing API calls are configured.
func (c BillingConfig) PortalEnabled() bool {
	return c.ValidatePortal() == nil
}

// LoadDatabaseDSN reads the database DSN from the environment or the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

func applyEnv(cfg *Config) {
	if dsn := envString(EnvDBConnection); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if portRaw := envString(EnvPort); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil {
			cfg.Port = port
		}
	}
	if ttlRaw := envString(EnvSessionTTL); ttlRaw != "" {
		if ttl, errParse := time.ParseDuration(ttlRaw); errParse == nil && ttl > 0 {
			cfg.Session.TTL = ttl
		}
	}
	if level := envString(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if key := envString(EnvOpenAIKey); key != "" {
		cfg.AI.APIKey = key
	}
	if baseURL := envString(EnvOpenAIBaseURL); baseURL != "" {
		cfg.AI.BaseURL = baseURL
	}
	if model := envString(EnvOpenAIModel); model != "" {
		cfg.AI.Model = model
	}
	if secret := envString(EnvPolarWebhookSecret); secret != "" {
		cfg.Billing.WebhookSecret = secret
	}
	if token := envString(EnvPolarAccessToken); token != "" {
		cfg.Billing.APIKey = token
	}
	if base := envString(EnvPolarAPIBase); base != "" {
		cfg.Billing.APIBase = base
	}
	if addr := envString(EnvRedisAddr); addr != "" {
		cfg.RateLimit.Redis.Addr = addr
		cfg.RateLimit.Redis.Enabled = true
	}
	if password := envString(EnvRedisPassword); password != "" {
		cfg.RateLimit.Redis.Password = password
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if strings.TrimSpace(cfg.AI.Model) == "" {
		cfg.AI.Model = DefaultAIModel
	}
	if cfg.AI.Temperature < 0 {
		cfg.AI.Temperature = DefaultAITemperature
	}
	if cfg.AI.ChatMaxTokens <= 0 {
		cfg.AI.ChatMaxTokens = DefaultChatMaxTokens
	}
	if cfg.AI.GenerateMaxTokens <= 0 {
		cfg.AI.GenerateMaxTokens = DefaultGenerateMaxTokens
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = DefaultAITimeout
	}
	cfg.Billing.APIBase = strings.TrimRight(strings.TrimSpace(cfg.Billing.APIBase), "/")
	if cfg.Billing.APIBase == "" {
		cfg.Billing.APIBase = DefaultPolarAPIBase
	}
	if cfg.Billing.AwaitTimeout <= 0 {
		cfg.Billing.AwaitTimeout = DefaultAwaitTimeout
	}
	if cfg.Billing.AwaitMaxTimeout <= 0 {
		cfg.Billing.AwaitMaxTimeout = DefaultAwaitMaxTimeout
	}
	if cfg.Billing.AwaitTimeout > cfg.Billing.AwaitMaxTimeout {
		cfg.Billing.AwaitTimeout = cfg.Billing.AwaitMaxTimeout
	}
	if cfg.RateLimit.FreeLimit < 0 {
		cfg.RateLimit.FreeLimit = 0
	}
	if cfg.RateLimit.SubscribedLimit < 0 {
		cfg.RateLimit.SubscribedLimit = 0
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = DefaultRateLimitWindow
	}
	if strings.TrimSpace(cfg.RateLimit.Redis.Prefix) == "" {
		cfg.RateLimit.Redis.Prefix = DefaultRateLimitPrefix
	}
	if cfg.RateLimit.Redis.DB < 0 {
		cfg.RateLimit.Redis.DB = 0
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
