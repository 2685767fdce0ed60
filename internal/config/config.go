package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr             string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	StoreDriver string // postgres | sqlite
	DatabaseURL string
	SQLitePath  string

	JWTSecret         string
	DurableSessionTTL time.Duration
	ScopedSessionTTL  time.Duration

	FederatedIssuer   string
	FederatedAudience string
	FederatedSecret   string

	WorkerID       string
	WorkerInterval time.Duration

	TokenFile string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                  getenv("APP_ENV", "development"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		StoreDriver:          getenv("STORE_DRIVER", "sqlite"),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		SQLitePath:           getenv("SQLITE_PATH", "schedlog.db"),
		JWTSecret:            getenv("JWT_SECRET", ""),
		FederatedIssuer:      getenv("FEDERATED_ISSUER", ""),
		FederatedAudience:    getenv("FEDERATED_AUDIENCE", "schedlog"),
		FederatedSecret:      getenv("FEDERATED_SECRET", ""),
		WorkerID:             getenv("WORKER_ID", "worker-1"),
		TokenFile:            getenv("TOKEN_FILE", defaultTokenFile()),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.DurableSessionTTL, err = getduration("DURABLE_SESSION_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ScopedSessionTTL, err = getduration("SCOPED_SESSION_TTL", 12*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.WorkerInterval, err = getduration("WORKER_INTERVAL", 800*time.Millisecond); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or sqlite, got %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("missing env: JWT_SECRET")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	return nil
}

// FederationEnabled reports whether federated ID tokens can be verified.
func (c Config) FederationEnabled() bool {
	return c.FederatedSecret != "" && c.FederatedIssuer != ""
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".schedlog-token"
	}
	return dir + "/schedlog/token"
}
