// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/envutil"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Server struct {
	Port            string
	Storage         string
	DatabaseURL     string
	JWTSecret       string
	RedisAddr       string
	RedisChannel    string
	LogMode         string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

func LoadServer() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Port:            envutil.String("PORT", "8080"),
		Storage:         strings.ToLower(envutil.String("STORAGE", StoragePostgres)),
		DatabaseURL:     envutil.String("DATABASE_URL", ""),
		JWTSecret:       envutil.String("JWT_SECRET", ""),
		RedisAddr:       envutil.String("REDIS_ADDR", ""),
		RedisChannel:    envutil.String("REDIS_CHANNEL", "messaging"),
		LogMode:         envutil.String("LOG_MODE", "development"),
		CORSOrigins:     envutil.List("CORS_ORIGINS", []string{"*"}),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	var errs []error
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is not set"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage))
	}
	return cfg, errors.Join(errs...)
}

type Client struct {
	BaseURL        string
	Token          string
	Role           messaging.Role
	UserID         string
	UserName       string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	AlertTTL       time.Duration
	LogMode        string
}

// LoadClient reads the terminal client's settings. The session identity comes
// from ROLE, USER_ID and USER_NAME; when absent it is taken from the token's
// claims by the caller.
func LoadClient() (Client, error) {
	_ = godotenv.Load()

	cfg := Client{
		BaseURL:        envutil.String("MESSAGING_URL", "http://localhost:8080"),
		Token:          envutil.String("MESSAGING_TOKEN", ""),
		Role:           messaging.Role(strings.ToLower(envutil.String("ROLE", ""))),
		UserID:         envutil.String("USER_ID", ""),
		UserName:       envutil.String("USER_NAME", ""),
		PollInterval:   envutil.Duration("POLL_INTERVAL", 0),
		RequestTimeout: envutil.Duration("REQUEST_TIMEOUT", 10*time.Second),
		AlertTTL:       envutil.Duration("ALERT_TTL", 5*time.Second),
		LogMode:        envutil.String("LOG_MODE", "nop"),
	}

	var errs []error
	if cfg.Token == "" {
		errs = append(errs, errors.New("MESSAGING_TOKEN is not set"))
	}
	if cfg.Role != "" && !cfg.Role.Valid() {
		errs = append(errs, fmt.Errorf("ROLE: %w", messaging.ErrBadRole))
	}
	return cfg, errors.Join(errs...)
}
