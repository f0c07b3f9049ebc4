package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	TokenTTL      time.Duration

	// VaultKey is the 32 byte AES key protecting templates and escrowed
	// proof keys. Empty means generate an ephemeral key at startup.
	VaultKey []byte

	SessionTTL    time.Duration
	SweepInterval time.Duration

	// LedgerBackend is "memory" or "postgres".
	LedgerBackend string
	PostgresDSN   string

	// SessionBackend is "memory" or "redis".
	SessionBackend string
	RedisAddr      string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           getEnv("BIOGATE_ADDR", ":8080"),
		JWTSigningKey:  getEnv("BIOGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenTTL:       15 * time.Minute,
		SessionTTL:     2 * time.Minute,
		SweepInterval:  30 * time.Second,
		LedgerBackend:  getEnv("BIOGATE_LEDGER_BACKEND", "memory"),
		PostgresDSN:    os.Getenv("BIOGATE_POSTGRES_DSN"),
		SessionBackend: getEnv("BIOGATE_SESSION_BACKEND", "memory"),
		RedisAddr:      getEnv("BIOGATE_REDIS_ADDR", "localhost:6379"),
	}

	if raw := os.Getenv("BIOGATE_TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Server{}, fmt.Errorf("parse BIOGATE_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if raw := os.Getenv("BIOGATE_SESSION_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Server{}, fmt.Errorf("parse BIOGATE_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}
	if raw := os.Getenv("BIOGATE_SWEEP_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Server{}, fmt.Errorf("parse BIOGATE_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}

	if raw := os.Getenv("BIOGATE_VAULT_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Server{}, fmt.Errorf("parse BIOGATE_VAULT_KEY: %w", err)
		}
		if len(key) != 32 {
			return Server{}, fmt.Errorf("BIOGATE_VAULT_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.VaultKey = key
	}

	switch cfg.LedgerBackend {
	case "memory", "postgres":
	default:
		return Server{}, fmt.Errorf("unknown BIOGATE_LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	if cfg.LedgerBackend == "postgres" && cfg.PostgresDSN == "" {
		return Server{}, fmt.Errorf("BIOGATE_POSTGRES_DSN is required when BIOGATE_LEDGER_BACKEND=postgres")
	}

	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return Server{}, fmt.Errorf("unknown BIOGATE_SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
