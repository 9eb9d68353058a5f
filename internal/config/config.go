package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service. It is built once
// at startup and passed by reference to every component that needs it.
type Config struct {
	ServerAddress    string
	WebhookSecret    string
	TransportBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig

	GlobalAdminIDs []int64

	Limits LimitsConfig
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

type LimitsConfig struct {
	MaxFileSizeMB       int64
	MaxSearchResults    int
	MaxSearchResultsCap int
	MaxAITextChars      int
	MaxTagLength        int
	MaxTagsPerFile      int
	SessionTTL          time.Duration
	PendingInputTTL     time.Duration
	SweepInterval       time.Duration
	AdminStatusCacheTTL time.Duration
	FilesPerResultsPage int
}

// Load reads configuration from the environment. If path is non-empty the
// file is loaded first (dotenv format); otherwise a ./.env file is picked up
// when present. Missing required credentials are reported as an error so the
// process can fail fast.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		ServerAddress:    envString("SERVER_ADDR", ":8090"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		TransportBaseURL: os.Getenv("TRANSPORT_BASE_URL"),
		Database: DatabaseConfig{
			Driver: envString("DB_DRIVER", "sqlite3"),
			DSN:    envString("DB_DSN", "./data/collalearn.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Username: os.Getenv("REDIS_USERNAME"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       int(envInt("REDIS_DB", 0)),
		},
		AI: AIConfig{
			BaseURL:     envString("AI_BASE_URL", "https://api.perplexity.ai"),
			APIKey:      os.Getenv("AI_API_KEY"),
			Model:       envString("AI_MODEL", "sonar"),
			Temperature: envFloat("AI_TEMPERATURE", 0.2),
			MaxTokens:   envInt("AI_MAX_TOKENS", 1024),
			Timeout:     time.Duration(envInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Limits: LimitsConfig{
			MaxFileSizeMB:       envInt("MAX_FILE_SIZE_MB", 20),
			MaxSearchResults:    int(envInt("MAX_SEARCH_RESULTS_DEFAULT", 10)),
			MaxSearchResultsCap: int(envInt("MAX_SEARCH_RESULTS_LIMIT", 50)),
			MaxAITextChars:      int(envInt("MAX_AI_TEXT_CHARS", 8000)),
			MaxTagLength:        int(envInt("MAX_TAG_LENGTH", 50)),
			MaxTagsPerFile:      int(envInt("MAX_TAGS_PER_FILE", 20)),
			SessionTTL:          envMinutes("SESSION_TTL_MINUTES", 60),
			PendingInputTTL:     envMinutes("PENDING_INPUT_TTL_MINUTES", 15),
			SweepInterval:       envMinutes("SWEEP_INTERVAL_MINUTES", 30),
			AdminStatusCacheTTL: envMinutes("ADMIN_CACHE_TTL_MINUTES", 5),
			FilesPerResultsPage: int(envInt("FILES_PER_PAGE", 5)),
		},
	}

	adminIDs, err := parseAdminIDs(os.Getenv("GLOBAL_ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.GlobalAdminIDs = adminIDs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET must be configured")
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("AI_API_KEY must be configured")
	}
	if len(c.GlobalAdminIDs) == 0 {
		return fmt.Errorf("GLOBAL_ADMIN_IDS must be configured")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN must be configured")
	}
	if c.Limits.MaxSearchResults < 1 || c.Limits.MaxSearchResults > c.Limits.MaxSearchResultsCap {
		return fmt.Errorf("MAX_SEARCH_RESULTS_DEFAULT out of range [1, %d]", c.Limits.MaxSearchResultsCap)
	}
	if c.Limits.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	return nil
}

// IsGlobalAdmin reports whether the user belongs to the startup allowlist.
func (c *Config) IsGlobalAdmin(userID int64) bool {
	for _, id := range c.GlobalAdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse GLOBAL_ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envMinutes(key string, fallback int64) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Minute
}
