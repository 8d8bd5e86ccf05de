package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Slack     SlackConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RedisConfig holds Redis settings. An empty URL disables event publishing.
type RedisConfig struct {
	URL      string
	Password string //nolint:gosec // G117: Redis connection config
}

// JWTConfig holds token settings and the optional bootstrap admin account.
type JWTConfig struct {
	Secret        string //nolint:gosec // G117: JWT signing secret config
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AdminUsername string
	AdminPassword string //nolint:gosec // G117: bootstrap credential
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	ChatRPS      float64
	ChatBurst    int
}

// LLMConfig selects the Classifier/Responder backend.
type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string //nolint:gosec // G117: provider credential config
	BaseURL  string
	Timeout  time.Duration
}

type PipelineConfig struct {
	GuardMaxLength  int
	BlockedKeywords []string
	SensitivePolicy bool
	TraceRetention  int
}

type SlackConfig struct {
	BotToken      string //nolint:gosec // G117: Slack bot token
	Channel       string
	SigningSecret string //nolint:gosec // G117: Slack request signing secret
}

// TelemetryConfig holds the OTLP/HTTP export target. Empty disables export.
type TelemetryConfig struct {
	Endpoint string
	Insecure bool
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbMaxConns, err := getEnvInt("CUST_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("CUST_JWT_ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("CUST_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CUST_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CUST_SERVER_WRITE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	chatRPS, err := getEnvFloat("CUST_CHAT_RPS", 2)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	chatBurst, err := getEnvInt("CUST_CHAT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmTimeout, err := getEnvDuration("CUST_LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxLength, err := getEnvInt("CUST_GUARD_MAX_LENGTH", 2000)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sensitive, err := getEnvBool("CUST_SENSITIVE_POLICY", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retention, err := getEnvInt("CUST_TRACE_RETENTION", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	otelInsecure, err := getEnvBool("CUST_OTEL_INSECURE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("CUST_DATABASE_URL", ""),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			URL:      getEnv("CUST_REDIS_URL", ""),
			Password: getEnv("CUST_REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("CUST_JWT_SECRET", ""),
			AccessTTL:     accessTTL,
			RefreshTTL:    refreshTTL,
			AdminUsername: getEnv("CUST_ADMIN_USERNAME", ""),
			AdminPassword: getEnv("CUST_ADMIN_PASSWORD", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("CUST_SERVER_ADDR", ":8000"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("CUST_CORS_ORIGINS", []string{"http://localhost:3000"}),
			ChatRPS:      chatRPS,
			ChatBurst:    chatBurst,
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("CUST_LLM_PROVIDER", "static")),
			Model:    getEnv("CUST_LLM_MODEL", ""),
			APIKey:   getEnv("CUST_LLM_API_KEY", ""),
			BaseURL:  getEnv("CUST_LLM_BASE_URL", ""),
			Timeout:  llmTimeout,
		},
		Pipeline: PipelineConfig{
			GuardMaxLength:  maxLength,
			BlockedKeywords: getEnvList("CUST_GUARD_BLOCKED_KEYWORDS", nil),
			SensitivePolicy: sensitive,
			TraceRetention:  retention,
		},
		Slack: SlackConfig{
			BotToken:      getEnv("CUST_SLACK_BOT_TOKEN", ""),
			Channel:       getEnv("CUST_SLACK_CHANNEL", ""),
			SigningSecret: getEnv("CUST_SLACK_SIGNING_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			Endpoint: getEnv("CUST_OTEL_ENDPOINT", ""),
			Insecure: otelInsecure,
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("CUST_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("CUST_LOG_FORMAT", "json")),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("CUST_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("CUST_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.URL == "" {
		log.Warn().Msg("CUST_DATABASE_URL not set; escalations and history are kept in memory")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CUST_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("CUST_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("CUST_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CUST_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CUST_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ChatRPS <= 0 {
		return fmt.Errorf("CUST_CHAT_RPS must be positive, got %g", c.Server.ChatRPS)
	}
	if c.Server.ChatBurst < 1 {
		return fmt.Errorf("CUST_CHAT_BURST must be >= 1, got %d", c.Server.ChatBurst)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("CUST_LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}
	if c.Pipeline.GuardMaxLength < 1 {
		return fmt.Errorf("CUST_GUARD_MAX_LENGTH must be >= 1, got %d", c.Pipeline.GuardMaxLength)
	}
	if c.Pipeline.TraceRetention < 1 {
		return fmt.Errorf("CUST_TRACE_RETENTION must be >= 1, got %d", c.Pipeline.TraceRetention)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("CUST_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if (c.JWT.AdminUsername == "") != (c.JWT.AdminPassword == "") {
		return errors.New("CUST_ADMIN_USERNAME and CUST_ADMIN_PASSWORD must be set together")
	}
	if c.JWT.AdminPassword != "" && len(c.JWT.AdminPassword) < 8 {
		return errors.New("CUST_ADMIN_PASSWORD must be at least 8 characters")
	}

	if (c.Slack.BotToken == "") != (c.Slack.Channel == "") {
		return errors.New("CUST_SLACK_BOT_TOKEN and CUST_SLACK_CHANNEL must be set together")
	}
	if c.Slack.SigningSecret != "" && c.Slack.BotToken == "" {
		return errors.New("CUST_SLACK_SIGNING_SECRET requires CUST_SLACK_BOT_TOKEN")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
