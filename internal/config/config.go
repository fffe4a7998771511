package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"faimport/internal/logger"
)

type Config struct {
	// Database Configuration
	DBDriver      string `validate:"required,oneof=mysql sqlite"`
	DBHost        string `validate:"required_if=DBDriver mysql"`
	DBPort        int    `validate:"gte=0,lte=65535"`
	DBUser        string `validate:"required_if=DBDriver mysql"`
	DBPassword    string
	DBName        string `validate:"required_if=DBDriver mysql"`
	DBPath        string `validate:"required_if=DBDriver sqlite"` // sqlite file or ":memory:"
	DBTablePrefix string // FrontAccounting company prefix, e.g. "0_"

	// HTTP Configuration
	HTTPAddr     string `validate:"required"`
	DefaultActor string `validate:"required"`

	// Import Configuration
	DuplicateThreshold float64       `validate:"gte=0,lte=1"`
	CleanupAge         time.Duration `validate:"gte=0"`
	UploadDir          string

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	GoogleServiceAccountKey    string

	// Gmail Configuration
	GmailUser  string `validate:"omitempty,email"`
	GmailQuery string

	// OpenAI Configuration
	OpenAIAPIKey string

	// Logging Configuration
	LogLevel      string `validate:"oneof=trace debug info warn error fatal panic"`
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

var validate = validator.New()

func Load() (*Config, error) {
	config := &Config{
		DBDriver:                   getEnv("DB_DRIVER", "sqlite"),
		DBHost:                     getEnv("DB_HOST", "localhost"),
		DBPort:                     getEnvInt("DB_PORT", 3306),
		DBUser:                     getEnv("DB_USER", ""),
		DBPassword:                 getEnv("DB_PASSWORD", ""),
		DBName:                     getEnv("DB_NAME", ""),
		DBPath:                     getEnv("DB_PATH", "faimport.db"),
		DBTablePrefix:              getEnv("DB_TABLE_PREFIX", "0_"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DefaultActor:               getEnv("DEFAULT_ACTOR", "system"),
		DuplicateThreshold:         getEnvFloat("DUPLICATE_THRESHOLD", 0.9),
		CleanupAge:                 getEnvDuration("CLEANUP_AGE", 90*24*time.Hour),
		UploadDir:                  getEnv("UPLOAD_DIR", os.TempDir()),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GoogleServiceAccountKey:    getEnv("GOOGLE_SERVICE_ACCOUNT_KEY", ""),
		GmailUser:                  getEnv("GMAIL_USER", ""),
		GmailQuery:                 getEnv("GMAIL_QUERY", "from:auto-confirm@amazon.com has:attachment"),
		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	return validate.Struct(c)
}

// RequireGoogleCloud reports the first missing setting needed by Document AI.
func (c *Config) RequireGoogleCloud() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.DocumentAIProcessorID == "" {
		return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required")
	}
	return nil
}

// RequireGmail reports the first missing setting needed by the Gmail importer.
func (c *Config) RequireGmail() error {
	if c.GoogleServiceAccountKey == "" {
		return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_KEY is required")
	}
	if c.GmailUser == "" {
		return fmt.Errorf("GMAIL_USER is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
