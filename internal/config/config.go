package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultMetricsAddr = ":9092"

	defaultPushWorkers = 32
	defaultSendTimeout = 10 * time.Second

	defaultReminderInterval = 5 * time.Minute
	defaultReminderWindow   = time.Hour

	defaultTokenURL = "https://oauth2.googleapis.com/token"

	defaultVaultKeyMount = "secret"
	defaultVaultKeyPath  = "nesttask/fcm"
	defaultVaultKeyField = "private_key"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	MetricsAddr string

	// PushAPIKey guards the HTTP API. Empty disables caller authentication,
	// which is only acceptable behind a trusted proxy.
	PushAPIKey string

	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string
	FCMTokenURL    string
	FCMEndpoint    string

	PushWorkers int
	SendTimeout time.Duration

	ReminderInterval time.Duration
	ReminderWindow   time.Duration

	VaultAddr     string
	VaultToken    string
	VaultKeyMount string
	VaultKeyPath  string
	VaultKeyField string
}

type LoadOptions struct {
	RequireDatabaseURL     bool
	RequirePushCredentials bool
}

// Load returns configuration for commands that need both the registration
// store and the push gateway credentials.
func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true, RequirePushCredentials: true})
}

// LoadStoreOnly returns configuration for commands that only touch the
// database, such as migrations.
func LoadStoreOnly() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr: getenvDefault("METRICS_ADDR", defaultMetricsAddr),

		PushAPIKey: strings.TrimSpace(os.Getenv("PUSH_API_KEY")),

		FCMProjectID:   strings.TrimSpace(os.Getenv("FCM_PROJECT_ID")),
		FCMClientEmail: strings.TrimSpace(os.Getenv("FCM_CLIENT_EMAIL")),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),
		FCMTokenURL:    getenvDefault("FCM_TOKEN_URL", defaultTokenURL),
		FCMEndpoint:    strings.TrimSpace(os.Getenv("FCM_ENDPOINT")),

		PushWorkers: getenvIntDefault("PUSH_WORKERS", defaultPushWorkers),
		SendTimeout: getenvDurationDefault("PUSH_SEND_TIMEOUT", defaultSendTimeout),

		ReminderInterval: getenvDurationDefault("REMINDER_INTERVAL", defaultReminderInterval),
		ReminderWindow:   getenvDurationDefault("REMINDER_WINDOW", defaultReminderWindow),

		VaultAddr:     strings.TrimSpace(os.Getenv("VAULT_ADDR")),
		VaultToken:    strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
		VaultKeyMount: getenvDefault("VAULT_KEY_MOUNT", defaultVaultKeyMount),
		VaultKeyPath:  getenvDefault("VAULT_KEY_PATH", defaultVaultKeyPath),
		VaultKeyField: getenvDefault("VAULT_KEY_FIELD", defaultVaultKeyField),
	}

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if opts.RequirePushCredentials {
		if err := cfg.validatePushCredentials(); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (c Config) validatePushCredentials() error {
	var missing []string
	if c.FCMProjectID == "" {
		missing = append(missing, "FCM_PROJECT_ID")
	}
	if c.FCMClientEmail == "" {
		missing = append(missing, "FCM_CLIENT_EMAIL")
	}
	// The private key may arrive from Vault instead of the environment.
	if strings.TrimSpace(c.FCMPrivateKey) == "" && c.VaultAddr == "" {
		missing = append(missing, "FCM_PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
