package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"koperasi/internal/export"
)

type Config struct {
	// Koperasi API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Database
	SQLiteDBPath string

	// Exports
	ExportDir         string
	ExportFormat      export.Format
	ExportMode        export.Mode
	ExportConcurrency int

	// Employee directory cache
	UsersCacheTTL time.Duration

	// AMQP; an empty URL disables audit events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export sink
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	LogLevel string
}

func Load() *Config {
	return &Config{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8000/api"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/koperasi.db"),

		ExportDir:         getEnv("EXPORT_DIR", "./exports"),
		ExportFormat:      export.Format(strings.ToLower(getEnv("EXPORT_FORMAT", string(export.FormatCSV)))),
		ExportMode:        export.Mode(strings.ToLower(getEnv("EXPORT_MODE", string(export.ModeSequential)))),
		ExportConcurrency: getEnvInt("EXPORT_CONCURRENCY", export.DefaultConcurrency),

		UsersCacheTTL: getEnvDuration("USERS_CACHE_TTL", 5*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "koperasi"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "koperasi_audit"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate API base URL
	if c.APIBaseURL == "" {
		errors = append(errors, "API base URL cannot be empty")
	} else if u, err := url.Parse(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate export settings
	if !c.ExportFormat.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid export format '%s': must be one of %v", c.ExportFormat, export.Formats()))
	}
	if !c.ExportMode.Valid() {
		errors = append(errors, fmt.Sprintf("invalid export mode '%s': must be 'sequential' or 'parallel'", c.ExportMode))
	}
	if c.ExportConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid export concurrency %d: must be at least 1", c.ExportConcurrency))
	} else if c.ExportConcurrency > 32 {
		errors = append(errors, fmt.Sprintf("invalid export concurrency %d: must be at most 32", c.ExportConcurrency))
	}
	if (c.ExportFormat == export.FormatCSV || c.ExportFormat == export.FormatXLSX) && c.ExportDir == "" {
		errors = append(errors, "export directory cannot be empty for file exports")
	}

	// Validate Google Sheets configuration if the sheets sink is selected
	if c.ExportFormat == export.FormatSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when EXPORT_FORMAT is sheets")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.UsersCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid users cache TTL %v: must not be negative", c.UsersCacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SinkConfig returns the export sink settings.
func (c *Config) SinkConfig() export.SinkConfig {
	return export.SinkConfig{
		Format:                   c.ExportFormat,
		Dir:                      c.ExportDir,
		GoogleSpreadsheetID:      c.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: c.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: c.GoogleServiceAccountFile,
	}
}

// AMQPEnabled reports whether audit events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
