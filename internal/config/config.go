// Package config loads service settings from the environment and an optional .env file.
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

// Config holds every non-database setting of the storefront services.
type Config struct {
	Port     string
	RunLocal bool

	JWTSecret          string
	CORSAllowedOrigins []string
	AutoMigrate        bool

	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackTimeout     time.Duration
	PaystackCallbackURL string
	DefaultCurrency     string

	LowStockThreshold int

	// NotifyTransport selects the primary notification sink: "db" or "sqs".
	NotifyTransport       string
	NotificationsQueueURL string
	AMQPURL               string
	AMQPExchange          string

	IdempotencyTable string
	IdempotencyTTL   time.Duration

	MetricsNamespace string
}

// Load reads .env (when present) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] ignoring .env: %v", err)
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		RunLocal:              getEnvBool("RUN_LOCAL", false),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AutoMigrate:           getEnvBool("DB_AUTO_MIGRATE", false),
		PaystackSecretKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:       getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackTimeout:       getEnvDuration("PAYSTACK_TIMEOUT", 10*time.Second),
		PaystackCallbackURL:   os.Getenv("PAYSTACK_CALLBACK_URL"),
		DefaultCurrency:       getEnv("DEFAULT_CURRENCY", "GHS"),
		LowStockThreshold:     getEnvInt("LOW_STOCK_THRESHOLD", 10),
		NotifyTransport:       strings.ToLower(getEnv("NOTIFY_TRANSPORT", "db")),
		NotificationsQueueURL: os.Getenv("NOTIFICATIONS_QUEUE_URL"),
		AMQPURL:               os.Getenv("AMQP_URL"),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "storefront.notifications"),
		IdempotencyTable:      os.Getenv("IDEMPOTENCY_TABLE"),
		IdempotencyTTL:        getEnvDuration("IDEMPOTENCY_TTL", 48*time.Hour),
		MetricsNamespace:      os.Getenv("METRICS_NAMESPACE"),
	}
}

// Validate reports settings the API cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
