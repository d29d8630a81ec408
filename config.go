package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultReplyText = "Thanks for your message! I will reply shortly."

// Store drivers accepted by RULES_STORE
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds everything read from the environment at start-up.
// It is passed to the handlers explicitly; nothing reads os.Getenv later.
type Config struct {
	// Messenger webhook
	VerifyToken      string
	DefaultReplyText string

	// Send API
	PageAccessToken string
	GraphAPIBaseURL string
	GraphAPIVersion string
	SendTimeout     time.Duration

	// HTTP server
	Port string

	// Rule storage
	StoreDriver string
	RulesDir    string
	SQLitePath  string
	SeedPath    string

	// When true the webhook answers with the matched rule instead of
	// DefaultReplyText
	AutoReplyUseRules bool
}

// loadEnvFiles loads .env and .env.<APP_ENV> if they exist.
// Variables already present in the environment win.
func loadEnvFiles() {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "dev"
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env." + env)

	log.Printf("APP_ENV=%s (loaded .env and .env.%s if present)", env, env)
}

// LoadConfig reads the configuration from the environment
func LoadConfig() *Config {
	loadEnvFiles()

	sendTimeout := 10 * time.Second
	if val := os.Getenv("SEND_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			sendTimeout = time.Duration(parsed) * time.Second
		}
	}

	useRules := false
	if val := os.Getenv("AUTO_REPLY_USE_RULES"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			useRules = parsed
		}
	}

	return &Config{
		VerifyToken:       os.Getenv("FACEBOOK_VERIFY_TOKEN"),
		DefaultReplyText:  envOr("DEFAULT_REPLY_TEXT", defaultReplyText),
		PageAccessToken:   os.Getenv("FACEBOOK_PAGE_ACCESS_TOKEN"),
		GraphAPIBaseURL:   strings.TrimRight(envOr("GRAPH_API_BASE_URL", "https://graph.facebook.com"), "/"),
		GraphAPIVersion:   envOr("GRAPH_API_VERSION", "v18.0"),
		SendTimeout:       sendTimeout,
		Port:              envOr("PORT", "8050"),
		StoreDriver:       strings.ToLower(envOr("RULES_STORE", StoreFile)),
		RulesDir:          envOr("RULES_DIR", "rules"),
		SQLitePath:        envOr("RULES_DB_PATH", "data/rules.db"),
		SeedPath:          os.Getenv("RULES_SEED_PATH"),
		AutoReplyUseRules: useRules,
	}
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return &ConfigError{Field: "RULES_STORE", Message: "must be one of file, sqlite, memory"}
	}
	if c.SendTimeout <= 0 {
		return &ConfigError{Field: "SEND_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	return nil
}

// Warnings lists settings that are allowed but leave a feature unusable
func (c *Config) Warnings() []string {
	var warnings []string
	if c.VerifyToken == "" {
		warnings = append(warnings, "FACEBOOK_VERIFY_TOKEN is empty, webhook verification will be rejected")
	}
	if c.PageAccessToken == "" {
		warnings = append(warnings, "FACEBOOK_PAGE_ACCESS_TOKEN is empty, auto-replies cannot be delivered")
	}
	return warnings
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
