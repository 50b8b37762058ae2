package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env
	AppEnv  string

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	MockServices   bool   // Store outgoing mail in Redis for the service API
	LogEmailsPath  string // Append outgoing mail to this file when set

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// Chat
	AppName               string
	ChatMaxMessageLength  int
	ChatRedisChannel      string
	ChatPollInterval      time.Duration // Advertised to clients as the reconciliation interval
	ChatNotifyNewEnquiry  bool
	ChatInboxDefaultLimit int

	// Websocket gateway
	WsSendBuffer    int
	WsInboundRate   float64 // frames per second
	WsInboundBurst  int
	WsPingInterval  time.Duration
	WsAllowedOrigin string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(v) * time.Second, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "houselisting")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.AppEnv = getEnv("APP_ENV", "production")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "8081")
	cfg.MockServices = getEnv("MOCK_SERVICES", "false") == "true"
	cfg.LogEmailsPath = getEnv("LOG_EMAILS", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@houselisting.example.com")
	cfg.AppName = getEnv("APP_NAME", "HouseListing")
	cfg.ChatRedisChannel = getEnv("CHAT_REDIS_CHANNEL", "chat:events")
	cfg.WsAllowedOrigin = getEnv("WS_ALLOWED_ORIGIN", "*")
	cfg.ChatNotifyNewEnquiry = getEnv("CHAT_NOTIFY_NEW_ENQUIRY", "true") == "true"

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600"); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ChatMaxMessageLength, err = getInt("CHAT_MAX_MESSAGE_LENGTH", "2000"); err != nil {
		return nil, err
	}
	if cfg.ChatInboxDefaultLimit, err = getInt("CHAT_INBOX_DEFAULT_LIMIT", "100"); err != nil {
		return nil, err
	}
	if cfg.ChatPollInterval, err = getSeconds("CHAT_POLL_INTERVAL_SECONDS", "5"); err != nil {
		return nil, err
	}
	if cfg.WsSendBuffer, err = getInt("WS_SEND_BUFFER", "64"); err != nil {
		return nil, err
	}
	if cfg.WsInboundBurst, err = getInt("WS_INBOUND_BURST", "20"); err != nil {
		return nil, err
	}
	cfg.WsInboundRate, err = strconv.ParseFloat(getEnv("WS_INBOUND_RATE", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WS_INBOUND_RATE: %w", err)
	}
	if cfg.WsPingInterval, err = getSeconds("WS_PING_INTERVAL_SECONDS", "30"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment reports whether APP_ENV selects development logging and defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
