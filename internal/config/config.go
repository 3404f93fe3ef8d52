// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/adapters/llm"
	"github.com/satriahrh/peacepal/server/adapters/mongo"
	"github.com/satriahrh/peacepal/server/internal/voice"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	defaultPort            = "8080"
	defaultAppID           = "peacepal"
	defaultCleanupInterval = 5 * time.Minute
	defaultPollInterval    = 2 * time.Second
	defaultTokenTTL        = 7 * 24 * time.Hour
)

// Config holds every server setting
type Config struct {
	Port            string
	AppID           string
	Store           string
	Mongo           mongo.Config
	PollInterval    time.Duration
	JWTSecret       string
	TokenTTL        time.Duration
	KeywordsPath    string
	CleanupInterval time.Duration
	Gemini          llm.GeminiConfig
	Live            llm.LiveConfig
	Voice           voice.Config
}

// FromEnv loads .env when present, reads the environment and applies defaults
func FromEnv(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}
	return Load(os.Getenv, logger)
}

// Load builds the config from a lookup function
func Load(getenv func(string) string, logger *zap.Logger) (*Config, error) {
	var err error
	config := &Config{
		Port:         getenv("PORT"),
		AppID:        getenv("APP_ID"),
		Store:        getenv("STORE"),
		JWTSecret:    getenv("JWT_SECRET"),
		KeywordsPath: getenv("KEYWORDS_PATH"),
		Mongo: mongo.Config{
			URI:      getenv("MONGODB_URI"),
			Database: getenv("MONGODB_DATABASE"),
		},
		Gemini: llm.GeminiConfig{
			APIKey:    getenv("GEMINI_API_KEY"),
			Model:     getenv("GEMINI_MODEL"),
			DeepModel: getenv("GEMINI_DEEP_MODEL"),
		},
		Live: llm.LiveConfig{
			Model: getenv("GEMINI_LIVE_MODEL"),
			Voice: getenv("GEMINI_VOICE"),
		},
	}

	if config.PollInterval, err = duration(getenv, "MONGODB_POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if config.TokenTTL, err = duration(getenv, "JWT_TTL"); err != nil {
		return nil, err
	}
	if config.CleanupInterval, err = duration(getenv, "CLEANUP_INTERVAL"); err != nil {
		return nil, err
	}
	if v := getenv("GEMINI_THINKING_BUDGET"); v != "" {
		budget, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid GEMINI_THINKING_BUDGET: %w", err)
		}
		config.Gemini.ThinkingBudget = int32(budget)
	}
	if v := getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if config.Gemini.TimeoutSeconds, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid GEMINI_TIMEOUT_SECONDS: %w", err)
		}
	}

	if err := Validate(config, logger); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the config and applies defaults
func Validate(config *Config, logger *zap.Logger) error {
	if config.Port == "" {
		config.Port = defaultPort
		logger.Info("Using default port", zap.String("port", config.Port))
	}
	if config.AppID == "" {
		config.AppID = defaultAppID
		logger.Info("Using default app ID", zap.String("appID", config.AppID))
	}
	switch config.Store {
	case "":
		config.Store = StoreMemory
		logger.Info("Using default message store", zap.String("store", config.Store))
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE %q, expected %s or %s", config.Store, StoreMemory, StoreMongo)
	}
	if config.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = defaultTokenTTL
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = defaultCleanupInterval
		logger.Info("Using default cleanup interval", zap.Duration("interval", config.CleanupInterval))
	}
	if config.Gemini.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, replies fall back to an apology and voice is unavailable")
	}

	if err := llm.ValidateGeminiConfig(&config.Gemini, logger); err != nil {
		return err
	}
	llm.ValidateLiveConfig(&config.Live, logger)
	voice.ValidateConfig(&config.Voice, logger)
	return nil
}

func duration(getenv func(string) string, key string) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
