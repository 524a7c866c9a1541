// Package config provides configuration management for the engagekit service.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the service.
type Config struct {
	// Server settings
	Port     int
	LogLevel string

	// Data directory: session files, quota store and action history live here.
	DataDir string

	// Browser settings
	Headless        bool
	ChromePath      string
	NavigateTimeout time.Duration

	// Session persistence
	SessionRetention time.Duration

	// Quota ceilings per action family (actions per sliding 24h window).
	LikeCeiling    int
	CommentCeiling int
	FollowCeiling  int
	MessageCeiling int
	DefaultCeiling int

	// Human pacing ranges
	PostLoadPauseMin time.Duration
	PostLoadPauseMax time.Duration
	ThinkPauseMin    time.Duration
	ThinkPauseMax    time.Duration
	KeyDelayMin      time.Duration
	KeyDelayMax      time.Duration

	// Element interaction
	ElementTimeout time.Duration

	// Platform adapter overrides (JSON file; optional)
	PlatformConfigPath string

	// Notifier settings
	WebhookURL    string
	NotifyTimeout time.Duration
	Silent        bool

	// Authentication for the HTTP surface
	APISecret            string // HMAC/JWT signing secret
	AllowUnauthenticated bool   // Allow unauthenticated requests (for testing)

	// Idle shutdown (scale-to-zero); <= 0 disables
	IdleTimeout time.Duration
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8270),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DataDir:  getEnv("DATA_DIR", "./data"),

		Headless:        getEnv("HEADLESS", "true") == "true",
		ChromePath:      getEnv("CHROME_PATH", ""),
		NavigateTimeout: getEnvDuration("NAVIGATE_TIMEOUT", 30*time.Second),

		SessionRetention: getEnvDuration("SESSION_RETENTION", 7*24*time.Hour),

		LikeCeiling:    getEnvInt("QUOTA_LIKE", 60),
		CommentCeiling: getEnvInt("QUOTA_COMMENT", 30),
		FollowCeiling:  getEnvInt("QUOTA_FOLLOW", 40),
		MessageCeiling: getEnvInt("QUOTA_MESSAGE", 20),
		DefaultCeiling: getEnvInt("QUOTA_DEFAULT", 24),

		PostLoadPauseMin: getEnvDuration("POST_LOAD_PAUSE_MIN", 1*time.Second),
		PostLoadPauseMax: getEnvDuration("POST_LOAD_PAUSE_MAX", 3*time.Second),
		ThinkPauseMin:    getEnvDuration("THINK_PAUSE_MIN", 2*time.Second),
		ThinkPauseMax:    getEnvDuration("THINK_PAUSE_MAX", 6*time.Second),
		KeyDelayMin:      getEnvDuration("KEY_DELAY_MIN", 40*time.Millisecond),
		KeyDelayMax:      getEnvDuration("KEY_DELAY_MAX", 160*time.Millisecond),

		ElementTimeout: getEnvDuration("ELEMENT_TIMEOUT", 8*time.Second),

		PlatformConfigPath: getEnv("PLATFORM_CONFIG", ""),

		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		Silent:        getEnv("ENGAGED_SILENT", "false") == "true",

		APISecret:            getEnv("API_SECRET", ""),
		AllowUnauthenticated: getEnv("ALLOW_UNAUTHENTICATED", "false") == "true",

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}
}

// SessionDir returns the directory holding per-platform session files.
func (c *Config) SessionDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// QuotaPath returns the path of the quota store file.
func (c *Config) QuotaPath() string {
	return filepath.Join(c.DataDir, "quota.json")
}

// HistoryPath returns the path of the action history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
