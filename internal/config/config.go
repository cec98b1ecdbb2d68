// Package config centralizes process-environment-derived settings into one
// immutable value read once at startup, rather than scattering os.Getenv
// calls through the request path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"hvgateway/internal/logger"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	ListenAddr string

	JWTSecret      string
	CookieSecure   bool
	CookieSameSite string
	CookieDomain   string

	CORSAllowedOrigins []string

	DatabaseURL string

	LogLevel string

	NodeSecretKey string

	// AdminUsername/AdminPassword seed the first admin account at startup
	// when no admin exists yet. AdminPassword empty disables seeding.
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	AllowInsecureTLS bool

	RateLimitLoginPerMin int
}

// Load reads a .env file if present (its absence is not an error) and then
// the process environment into a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Get().Debug().Msg("no .env file found, continuing with process environment")
	}

	cfg := &Config{
		ListenAddr:           getEnvDefault("LISTEN_ADDR", "0.0.0.0:3001"),
		JWTSecret:            getEnvDefault("JWT_SECRET", "placeholder_secret"),
		CookieSecure:         getBoolDefault("COOKIE_SECURE", false),
		CookieSameSite:       getEnvDefault("COOKIE_SAMESITE", "lax"),
		CookieDomain:         os.Getenv("COOKIE_DOMAIN"),
		CORSAllowedOrigins:   splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		LogLevel:             getEnvDefault("LOG_LEVEL", "info"),
		NodeSecretKey:        os.Getenv("NODE_SECRET_KEY"),
		AdminUsername:        getEnvDefault("ADMIN_USERNAME", "admin"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		AdminEmail:           os.Getenv("ADMIN_EMAIL"),
		AllowInsecureTLS:     getBoolDefault("ALLOW_INSECURE_TLS", true),
		RateLimitLoginPerMin: getIntDefault("RATE_LIMIT_LOGIN_PER_MIN", 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "placeholder_secret" {
		logger.Get().Warn().Msg("JWT_SECRET not set, using dev placeholder; do not use in production")
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
