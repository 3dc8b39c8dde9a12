package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory (memory: no user info on attempt summaries)
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret     string
	TokenTTL           time.Duration
	EnableRegistration bool

	// bootstrap admin; skipped unless both are set
	AdminPersonalID string
	AdminPassHash   string // bcrypt
	AdminEmail      string

	CORSOrigins []string

	RequestTimeout time.Duration
	BeaconTimeout  time.Duration
}

// FromEnv reads the process environment, after loading ./.env when present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}
	return Config{
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(envOr("DB_DRIVER", "sqlite")),
		DBDSN:              envOr("DB_DSN", ""),
		BlobBasePath:       envOr("BLOB_BASE_PATH", "./data"),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		TokenTTL:           envDuration("TOKEN_TTL", 24*time.Hour),
		EnableRegistration: envBool("ENABLE_REGISTRATION", true),
		AdminPersonalID:    os.Getenv("ADMIN_PERSONAL_ID"),
		AdminPassHash:      os.Getenv("ADMIN_PASS_HASH"),
		AdminEmail:         os.Getenv("ADMIN_EMAIL"),
		CORSOrigins:        csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 30*time.Second),
		BeaconTimeout:      envDuration("BEACON_TIMEOUT", 5*time.Second),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: %s=%q is not a positive duration, using %s", k, v, def)
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
