package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPaymentBaseURL = "https://api.chapa.co/v1"
	DefaultPaymentTimeout = 30 * time.Second
)

type Config struct {
	Port          string
	Env           string
	MongoURI      string
	MongoDB       string
	RedisURL      string
	TrustProxy    bool
	JWTSecret     string
	PublicBaseURL string
	Payment       Payment
}

// Payment holds the provider credentials. WebhookSecret may be empty, in which
// case every webhook is rejected.
type Payment struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// Load reads .env (if present) and the process environment. Missing required
// keys are reported together in a single error.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:          port,
		Env:           getEnv("APP_ENV", "development"),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGOURI")),
		MongoDB:       getEnv("MONGO_DB", "studybuddy"),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		TrustProxy:    getBool("TRUST_PROXY", false),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		Payment: Payment{
			SecretKey:     strings.TrimSpace(os.Getenv("PAYMENT_SECRET_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("PAYMENT_WEBHOOK_SECRET")),
			BaseURL:       strings.TrimRight(getEnv("PAYMENT_BASE_URL", DefaultPaymentBaseURL), "/"),
			Timeout:       getDuration("PAYMENT_TIMEOUT", DefaultPaymentTimeout),
		},
	}

	var missing []string
	if cfg.Payment.SecretKey == "" {
		missing = append(missing, "PAYMENT_SECRET_KEY")
	}
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGOURI")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return b
	}
	return fallback
}
