package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/PromptPanel/internal/api"
	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/messaging"
	"github.com/BTreeMap/PromptPanel/internal/sessions"
	"github.com/BTreeMap/PromptPanel/internal/twiliowhatsapp"
	"github.com/BTreeMap/PromptPanel/internal/util"
	"github.com/BTreeMap/PromptPanel/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for server state data
	DefaultStateDir = "/var/lib/promptpanel"
	// DefaultAppDBFileName is the default SQLite database filename for panel records
	DefaultAppDBFileName = "promptpanel.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsapp.db"
	// DefaultSessionKeyPrefix namespaces conversation sessions in Redis
	DefaultSessionKeyPrefix = "promptpanel:session:"
)

// Config holds the server configuration read from the environment.
type Config struct {
	StateDir          string
	DatabaseURL       string
	WhatsAppDBDSN     string
	APIAddr           string
	JWTSecret         string
	TokenTTL          time.Duration
	BootstrapEmail    string
	BootstrapPassword string
	Timezone          string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionKeyPrefix  string
	MessagingBackend  string
	BulkDelay         time.Duration
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
}

// initializeLogger sets up structured logging. An unknown level falls back to debug.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil || level == "" {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadDotEnv reads .env from the working directory when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
}

// loadEnvironmentConfig loads server configuration from environment variables.
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:          util.GetenvDefault("PANEL_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:           util.GetenvDefault("API_ADDR", api.DefaultAddr),
		JWTSecret:         os.Getenv("PANEL_JWT_SECRET"),
		TokenTTL:          util.ParseDurationEnv("PANEL_TOKEN_TTL", auth.DefaultTokenTTL),
		BootstrapEmail:    os.Getenv("PANEL_BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("PANEL_BOOTSTRAP_PASSWORD"),
		Timezone:          util.GetenvDefault("PANEL_TIMEZONE", "UTC"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           util.ParseIntEnv("REDIS_DB", 0),
		SessionKeyPrefix:  util.GetenvDefault("SESSION_KEY_PREFIX", DefaultSessionKeyPrefix),
		MessagingBackend:  util.GetenvDefault("MESSAGING_BACKEND", messaging.BackendDryRun),
		BulkDelay:         util.ParseDurationEnv("BULK_SEND_DELAY", time.Second),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
	}

	slog.Debug("environment variables loaded",
		"PANEL_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"PANEL_JWT_SECRET_SET", config.JWTSecret != "",
		"PANEL_TOKEN_TTL", config.TokenTTL,
		"PANEL_TIMEZONE", config.Timezone,
		"REDIS_ADDR", config.RedisAddr,
		"MESSAGING_BACKEND", config.MessagingBackend)

	return config
}

// withDefaults fills the database locations that derive from the state directory.
// It runs after flags are applied so --state-dir moves them too.
func (c Config) withDefaults() Config {
	if c.DatabaseURL == "" {
		c.DatabaseURL = filepath.Join(c.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_URL set, defaulting to SQLite", "sqlite_path", c.DatabaseURL)
	}
	if c.WhatsAppDBDSN == "" {
		c.WhatsAppDBDSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return c
}

// buildAPIOptions constructs API server configuration options.
func buildAPIOptions(config Config) ([]api.Option, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PANEL_TIMEZONE %q: %w", config.Timezone, err)
	}
	return []api.Option{
		api.WithAddr(config.APIAddr),
		api.WithLocation(loc),
		api.WithBulkDelay(config.BulkDelay),
	}, nil
}

// openSessionStore uses Redis when REDIS_ADDR is set and memory otherwise.
func openSessionStore(ctx context.Context, config Config) (sessions.Store, error) {
	if config.RedisAddr == "" {
		slog.Warn("No REDIS_ADDR set, conversation sessions are kept in memory")
		return sessions.NewInMemoryStore(), nil
	}
	slog.Debug("Connecting session store to Redis", "addr", config.RedisAddr, "db", config.RedisDB)
	return sessions.NewRedisStore(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB,
		sessions.WithKeyPrefix(config.SessionKeyPrefix))
}

// openMessagingService builds the bulk send backend named by MESSAGING_BACKEND.
func openMessagingService(ctx context.Context, config Config, qrOutput string, numeric bool) (messaging.Service, error) {
	switch strings.ToLower(config.MessagingBackend) {
	case messaging.BackendDryRun:
		slog.Info("Messaging backend is dry-run; bulk sends are logged, not delivered")
		return messaging.NewDryRunService(), nil
	case messaging.BackendTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
			twiliowhatsapp.WithFromNumber(config.TwilioFromNumber),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure Twilio: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case messaging.BackendWhatsApp:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDBDSN)}
		if qrOutput != "" {
			f, err := os.Create(qrOutput)
			if err != nil {
				return nil, fmt.Errorf("failed to open QR output %s: %w", qrOutput, err)
			}
			defer f.Close()
			waOpts = append(waOpts, whatsapp.WithQRWriter(f))
		}
		if numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown MESSAGING_BACKEND %q (want %s, %s or %s)",
			config.MessagingBackend, messaging.BackendWhatsApp, messaging.BackendTwilio, messaging.BackendDryRun)
	}
}
