package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backup document store backends.
const (
	BackupMemory    = "memory"
	BackupFirestore = "firestore"
	BackupS3        = "s3"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	GoogleClientID string
	RequireAuth    bool

	// Connectivity probe
	ConnectivityCheck   bool
	ConnectivityAddrs   []string
	ConnectivityTimeout time.Duration

	// Backup
	BackupBackend      string
	BackupCollection   string
	RestorePolicy      string
	FirestoreProjectID string
	FirestoreCredsFile string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3AccessKeyID      string
	S3SecretAccessKey  string

	// Update checker
	AppVersion           string
	UpdateRepoOwner      string
	UpdateRepoName       string
	UpdateBaseURL        string
	UpdateAssetSuffix    string
	UpdateTimeout        time.Duration
	UpdateCacheTTL       time.Duration
	UpdateDownloadDir    string
	UpdateInstallCommand string
	UpdateAllowInstall   bool

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Worker
	AutoBackupInterval time.Duration
	WorkerMetricsAddr  string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/smartbudget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "smartbudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "backup_requests"),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		RequireAuth:    getEnvBool("REQUIRE_AUTH", false),

		ConnectivityCheck:   getEnvBool("CONNECTIVITY_CHECK", true),
		ConnectivityAddrs:   getEnvList("CONNECTIVITY_ADDRS", []string{"api.github.com:443"}),
		ConnectivityTimeout: getEnvDuration("CONNECTIVITY_TIMEOUT", 3*time.Second),

		BackupBackend:      getEnv("BACKUP_BACKEND", BackupMemory),
		BackupCollection:   getEnv("BACKUP_COLLECTION", "backups"),
		RestorePolicy:      getEnv("RESTORE_POLICY", "overwrite"),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "auto"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:      getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:  getEnv("S3_SECRET_ACCESS_KEY", ""),

		AppVersion:           getEnv("APP_VERSION", "1.0.0"),
		UpdateRepoOwner:      getEnv("UPDATE_REPO_OWNER", "utsogharami5-source"),
		UpdateRepoName:       getEnv("UPDATE_REPO_NAME", "stitch-app"),
		UpdateBaseURL:        getEnv("UPDATE_BASE_URL", "https://api.github.com"),
		UpdateAssetSuffix:    getEnv("UPDATE_ASSET_SUFFIX", ".apk"),
		UpdateTimeout:        getEnvDuration("UPDATE_TIMEOUT", 10*time.Second),
		UpdateCacheTTL:       getEnvDuration("UPDATE_CACHE_TTL", 5*time.Minute),
		UpdateDownloadDir:    getEnv("UPDATE_DOWNLOAD_DIR", "./data/updates"),
		UpdateInstallCommand: getEnv("UPDATE_INSTALL_COMMAND", ""),
		UpdateAllowInstall:   getEnvBool("UPDATE_ALLOW_INSTALL", true),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		AutoBackupInterval: getEnvDuration("AUTO_BACKUP_INTERVAL", 24*time.Hour),
		WorkerMetricsAddr:  getEnv("WORKER_METRICS_ADDR", ""),
	}

	return cfg
}

// SheetsEnabled reports whether a spreadsheet is configured for export.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

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

	if c.RequireAuth && c.GoogleClientID == "" {
		errors = append(errors, "GOOGLE_CLIENT_ID is required when REQUIRE_AUTH is enabled")
	}

	if c.ConnectivityCheck && len(c.ConnectivityAddrs) == 0 {
		errors = append(errors, "at least one connectivity address is required when the connectivity check is enabled")
	}

	validBackends := []string{BackupMemory, BackupFirestore, BackupS3}
	if !slices.Contains(validBackends, c.BackupBackend) {
		errors = append(errors, fmt.Sprintf("invalid backup backend '%s': must be one of %v", c.BackupBackend, validBackends))
	}
	if c.BackupCollection == "" {
		errors = append(errors, "backup collection cannot be empty")
	}
	switch c.BackupBackend {
	case BackupFirestore:
		if c.FirestoreProjectID == "" {
			errors = append(errors, "FIRESTORE_PROJECT_ID is required when using the firestore backup backend")
		}
		if c.FirestoreCredsFile != "" {
			if _, err := os.Stat(c.FirestoreCredsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Firestore credentials file does not exist: %s", c.FirestoreCredsFile))
			}
		}
	case BackupS3:
		if c.S3Bucket == "" {
			errors = append(errors, "S3_BUCKET is required when using the s3 backup backend")
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			errors = append(errors, "S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	}

	if c.RestorePolicy != "overwrite" && c.RestorePolicy != "skip-newer-local" {
		errors = append(errors, fmt.Sprintf("invalid restore policy '%s': must be 'overwrite' or 'skip-newer-local'", c.RestorePolicy))
	}

	if c.UpdateRepoOwner == "" || c.UpdateRepoName == "" {
		errors = append(errors, "update repository owner and name cannot be empty")
	}
	if u, err := url.Parse(c.UpdateBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid update base URL '%s': must be an http(s) URL", c.UpdateBaseURL))
	}
	if c.UpdateTimeout < time.Second || c.UpdateTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid update timeout %v: must be between 1 second and 5 minutes", c.UpdateTimeout))
	}
	if c.UpdateCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid update cache TTL %v: cannot be negative", c.UpdateCacheTTL))
	}
	if c.UpdateDownloadDir == "" {
		errors = append(errors, "update download directory cannot be empty")
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		hasServiceAccount := c.GoogleServiceAccountFile != ""
		hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
		hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
		if !hasServiceAccount && !(hasClient && hasToken) {
			errors = append(errors, "sheets export needs GOOGLE_SERVICE_ACCOUNT_FILE or both an OAuth client and an OAuth token")
		}
		if hasServiceAccount {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
	}

	if c.AutoBackupInterval != 0 && c.AutoBackupInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid auto backup interval %v: must be 0 (disabled) or at least 1 minute", c.AutoBackupInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
