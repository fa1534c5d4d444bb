package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// DB
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// Session tokens
	Issuer       string
	SessionTTL   time.Duration
	SigningKey   string // base64 ed25519 private key; empty = ephemeral
	SigningKeyID string

	// HTTP
	Addr        string
	CORSOrigins []string
	RateLimit   int
}

func Load() Config {
	return Config{
		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getenv("DATABASE_URL", "novachat.db"),

		Issuer:       getenv("ISSUER", "http://localhost:3001"),
		SessionTTL:   getdur("SESSION_TTL", 24*time.Hour),
		SigningKey:   os.Getenv("SIGNING_KEY"),
		SigningKeyID: getenv("SIGNING_KEY_ID", "kid-1"),

		Addr:        getenv("ADDR", ":3001"),
		CORSOrigins: getlist("CORS_ORIGINS"),
		RateLimit:   getint("RATE_LIMIT_PER_MINUTE", 120),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid int, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getlist(k string) []string {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
