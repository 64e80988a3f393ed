// Package config loads and validates the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyLedgerBackend = "LEDGER_BACKEND"
	KeyMongoURI      = "MONGO_URI"
	KeyFirebaseProj  = "FIREBASE_PROJECT_ID"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Storage backends for the ledger and the admin directory.
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
	BackendFile      = "file"

	DefaultAppEnv   = EnvProduction
	DefaultLogLevel = "info"
)

// Config mirrors resolved configuration values after loading.
type Config struct {
	AppEnv        string   `env:"APP_ENV" envDefault:"production"`
	LogLevel      string   `env:"LOG_LEVEL" envDefault:"info"`
	ServerAddress string   `env:"SERVER_ADDRESS" envDefault:":8080"`
	Port          string   `env:"PORT"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	LedgerBackend   string `env:"LEDGER_BACKEND" envDefault:"mongo"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDB         string `env:"MONGO_DB" envDefault:"comunidad"`
	UsersCollection string `env:"USERS_COLLECTION" envDefault:"users"`
	DataDir         string `env:"DATA_DIR" envDefault:"./data"`

	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsJSON string `env:"FIREBASE_CREDENTIALS_JSON"`
	InternalJWTSecret       string `env:"INTERNAL_JWT_SECRET"`

	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	NotifyFromEmail string `env:"NOTIFY_FROM_EMAIL"`
	NotifyFromName  string `env:"NOTIFY_FROM_NAME" envDefault:"Comunidad"`
	AdminBaseURL    string `env:"ADMIN_BASE_URL" envDefault:"http://localhost:5173"`

	RedisURL       string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Load resolves configuration from the environment. A .env file is only read when
// APP_ENV=development; production relies on variables supplied by the runtime.
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AppEnv = firstNonEmpty(normalize(cfg.AppEnv), appEnv)
	cfg.LedgerBackend = normalize(cfg.LedgerBackend)
	cfg.MongoURI = strings.TrimSpace(cfg.MongoURI)
	cfg.FirebaseProjectID = strings.TrimSpace(cfg.FirebaseProjectID)
	cfg.AdminBaseURL = strings.TrimRight(strings.TrimSpace(cfg.AdminBaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c Config) Validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
	}

	switch c.LedgerBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("missing required environment variable(s): %s", KeyMongoURI)
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("missing required environment variable(s): %s", KeyFirebaseProj)
		}
	case BackendFile:
	default:
		return fmt.Errorf("invalid %s: must be %q, %q or %q", KeyLedgerBackend, BackendMongo, BackendFirestore, BackendFile)
	}

	if c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be greater than 0")
	}

	return nil
}

// ListenAddress prefers PORT (set by Cloud Run) over SERVER_ADDRESS.
func (c Config) ListenAddress() string {
	if port := strings.TrimSpace(c.Port); port != "" {
		return ":" + port
	}
	return c.ServerAddress
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the configuration with secrets masked.
func FormatRedacted(c Config) string {
	lines := []string{
		"APP_ENV=" + c.AppEnv,
		"LOG_LEVEL=" + c.LogLevel,
		"SERVER_ADDRESS=" + c.ServerAddress,
		"CORS_ORIGINS=" + strings.Join(c.CORSOrigins, ","),
		"LEDGER_BACKEND=" + c.LedgerBackend,
		"MONGO_URI=" + redact(c.MongoURI),
		"MONGO_DB=" + c.MongoDB,
		"USERS_COLLECTION=" + c.UsersCollection,
		"DATA_DIR=" + c.DataDir,
		"FIREBASE_PROJECT_ID=" + c.FirebaseProjectID,
		"FIREBASE_CREDENTIALS_JSON=" + redact(c.FirebaseCredentialsJSON),
		"INTERNAL_JWT_SECRET=" + redact(c.InternalJWTSecret),
		"SENDGRID_API_KEY=" + redact(c.SendGridAPIKey),
		"NOTIFY_FROM_EMAIL=" + c.NotifyFromEmail,
		"NOTIFY_FROM_NAME=" + c.NotifyFromName,
		"ADMIN_BASE_URL=" + c.AdminBaseURL,
		"REDIS_URL=" + redact(c.RedisURL),
		"IDEMPOTENCY_TTL=" + c.IdempotencyTTL.String(),
	}
	return strings.Join(lines, "\n")
}

func redact(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return "****"
}

func resolveAppEnv() (string, error) {
	if explicit := normalize(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalize(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
