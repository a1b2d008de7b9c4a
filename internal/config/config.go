package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application-wide configuration.
type Config struct {
	Addr              string
	DataDir           string
	BackupDir         string
	EnableBackups     bool
	BackupInterval    time.Duration
	BackupRetention   time.Duration
	ShutdownTimeout   time.Duration
	SessionTTL        time.Duration
	MaxUploadBytes    int64
	AdminPassword     string
	AdminPasswordHash string
	RequiredFields    []string
}

// NewDefaultConfig creates a Config struct with sensible default values.
func NewDefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		DataDir:         "data",
		BackupDir:       "backups",
		EnableBackups:   true,
		BackupInterval:  1 * time.Hour,
		BackupRetention: 7 * 24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		SessionTTL:      12 * time.Hour,
		MaxUploadBytes:  32 * 1024 * 1024,
		AdminPassword:   "admin123",
		RequiredFields:  []string{"NAMA", "NOPEK", "PENANGGUNG"},
	}
}

// LoadConfig loads configuration with a clear precedence:
// Environment > .env file > Defaults.
func LoadConfig() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	cfg := NewDefaultConfig()
	slog.Info("Loading configuration...")
	applyEnvConfig(&cfg)
	return cfg
}

// applyEnvConfig overrides config values from environment variables.
func applyEnvConfig(cfg *Config) {
	if addrEnv := os.Getenv("MEMBERCHECK_ADDR"); addrEnv != "" {
		cfg.Addr = addrEnv
		slog.Info("Overriding Addr from environment", "value", addrEnv)
	}

	if dataDirEnv := os.Getenv("MEMBERCHECK_DATA_DIR"); dataDirEnv != "" {
		cfg.DataDir = dataDirEnv
		slog.Info("Overriding DataDir from environment", "value", dataDirEnv)
	}

	if backupDirEnv := os.Getenv("MEMBERCHECK_BACKUP_DIR"); backupDirEnv != "" {
		cfg.BackupDir = backupDirEnv
		slog.Info("Overriding BackupDir from environment", "value", backupDirEnv)
	}

	if enableBackupsEnv := os.Getenv("MEMBERCHECK_ENABLE_BACKUPS"); enableBackupsEnv != "" {
		if b, err := strconv.ParseBool(enableBackupsEnv); err == nil {
			cfg.EnableBackups = b
			slog.Info("Overriding EnableBackups from environment", "value", b)
		} else {
			slog.Warn("Invalid MEMBERCHECK_ENABLE_BACKUPS env var, using default", "value", enableBackupsEnv)
		}
	}

	if maxUploadEnv := os.Getenv("MEMBERCHECK_MAX_UPLOAD_BYTES"); maxUploadEnv != "" {
		if i, err := strconv.ParseInt(maxUploadEnv, 10, 64); err == nil && i > 0 {
			cfg.MaxUploadBytes = i
			slog.Info("Overriding MaxUploadBytes from environment", "value", i)
		} else {
			slog.Warn("Invalid MEMBERCHECK_MAX_UPLOAD_BYTES env var, using default", "value", maxUploadEnv)
		}
	}

	if passEnv := os.Getenv("MEMBERCHECK_ADMIN_PASSWORD"); passEnv != "" {
		cfg.AdminPassword = passEnv
	}

	if hashEnv := os.Getenv("MEMBERCHECK_ADMIN_PASSWORD_HASH"); hashEnv != "" {
		cfg.AdminPasswordHash = hashEnv
	}

	// MEMBERCHECK_REQUIRED_FIELDS is a comma-separated header list; setting
	// it to a blank value disables upload validation entirely.
	if fieldsEnv, declared := os.LookupEnv("MEMBERCHECK_REQUIRED_FIELDS"); declared {
		cfg.RequiredFields = splitFields(fieldsEnv)
		slog.Info("Overriding RequiredFields from environment", "value", cfg.RequiredFields)
	}

	overrideDuration("MEMBERCHECK_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	overrideDuration("MEMBERCHECK_SESSION_TTL", &cfg.SessionTTL)
	overrideDuration("MEMBERCHECK_BACKUP_INTERVAL", &cfg.BackupInterval)
	overrideDuration("MEMBERCHECK_BACKUP_RETENTION", &cfg.BackupRetention)
}

func overrideDuration(envKey string, target *time.Duration) {
	envVal := os.Getenv(envKey)
	if envVal != "" {
		if d, err := time.ParseDuration(envVal); err == nil {
			*target = d
			slog.Info("Overriding duration from environment", "key", envKey, "value", envVal)
		} else {
			slog.Warn("Invalid duration format in env var, using default", "key", envKey, "value", envVal)
		}
	}
}

func splitFields(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if f := strings.TrimSpace(part); f != "" {
			out = append(out, f)
		}
	}
	return out
}
