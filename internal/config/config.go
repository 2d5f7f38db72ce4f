package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds environment-driven configuration.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisAddr     string
	JWTSecret     string
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	PublicBaseURL string
	LogLevel      string

	Geo      GeoConfig
	Payment  PaymentConfig
	Kafka    KafkaConfig
	Outbound OutboundConfig
}

// GeoConfig points at the OpenRouteService geocoding and directions APIs.
type GeoConfig struct {
	BaseURL string
	APIKey  string
	Country string
}

// PaymentConfig holds the gateway credentials. PayoutAccount is the platform
// account payouts are drawn from.
type PaymentConfig struct {
	BaseURL       string
	IFSCBaseURL   string
	KeyID         string
	KeySecret     string
	PayoutAccount string
	Currency      string
}

type KafkaConfig struct {
	Brokers       []string
	ReferralTopic string
}

// OutboundConfig bounds every call to an external service.
type OutboundConfig struct {
	Timeout    time.Duration
	MaxRetries uint64
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Addr:          getEnv("HOMEMEAL_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TokenTTL:      getDuration("JWT_TTL", 72*time.Hour),
		SessionTTL:    getDuration("SESSION_TTL", 24*time.Hour),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Geo: GeoConfig{
			BaseURL: getEnv("ORS_BASE_URL", "https://api.openrouteservice.org"),
			APIKey:  os.Getenv("ORS_API_KEY"),
			Country: getEnv("GEO_COUNTRY", "IN"),
		},
		Payment: PaymentConfig{
			BaseURL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			IFSCBaseURL:   getEnv("IFSC_BASE_URL", "https://ifsc.razorpay.com"),
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			PayoutAccount: os.Getenv("RAZORPAY_PAYOUT_ACCOUNT"),
			Currency:      getEnv("CURRENCY", "INR"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			ReferralTopic: getEnv("KAFKA_REFERRAL_TOPIC", "referral.coupon.issued"),
		},
		Outbound: OutboundConfig{
			Timeout:    getDuration("HTTP_TIMEOUT", 5*time.Second),
			MaxRetries: uint64(getInt("HTTP_MAX_RETRIES", 2)),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
