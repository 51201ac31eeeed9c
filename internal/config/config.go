// Package config builds the process-wide configuration once at startup.
// Nothing else in the server reads the environment.
package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string

	DatabaseURL string
	RedisURL    string

	SessionSecret      string
	VerificationSecret string
	// SessionTokenTTL of zero mints session tokens without an exp claim.
	SessionTokenTTL time.Duration

	FrontendURL string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	MailFrom    string

	WalletAPI       string
	ActivityAPI     string
	FloorAPI        string
	StatAPI         string
	TrendingAPI     string
	FavoriteAPI     string
	UpstreamTimeout time.Duration

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	CORSAllowedOrigins []string
}

// LoadDotenv loads .env.local, falling back to .env. Missing files are fine.
func LoadDotenv() {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	LoadDotenv()
	return FromEnv()
}

// FromEnv reads the current environment without touching .env files.
func FromEnv() (Config, error) {
	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("PORT", "3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SessionSecret:      os.Getenv("SESSION_SECRET"),
		VerificationSecret: os.Getenv("VERIFICATION_SECRET"),
		SessionTokenTTL:    getDuration("SESSION_TOKEN_TTL", 7*24*time.Hour),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SMTPHost:    getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:    getInt("SMTP_PORT", 587),
		SMTPUser:    os.Getenv("SMTP_USER"),
		SMTPPass:    os.Getenv("SMTP_PASS"),
		MailFrom:    getEnv("MAIL_FROM", "NFT Marketplace <no-reply@abstrio.io>"),

		WalletAPI:       os.Getenv("WALLET_API"),
		ActivityAPI:     os.Getenv("ACTIVITY_API"),
		FloorAPI:        os.Getenv("FLOOR_API"),
		StatAPI:         os.Getenv("STAT_API"),
		TrendingAPI:     os.Getenv("TRENDING_API"),
		FavoriteAPI:     os.Getenv("FAVORITE_API"),
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		S3Bucket:        getEnv("S3_BUCKET", "abstrio"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET is required")
	}
	// a separate secret keeps the two token kinds apart even if audiences were ignored
	if cfg.VerificationSecret == "" {
		cfg.VerificationSecret = cfg.SessionSecret + ":email"
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimRight(strings.TrimSpace(p), "/"); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
