package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string

	// OpenProcessors restores the legacy behavior where processing consent
	// creation may name processors outside the recipient list, appending
	// them to it. Off by default.
	OpenProcessors bool

	AuditBuffer     int
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:            envOr("CONSENTRY_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("CONSENTRY_POSTGRES_DSN"),
		RedisAddr:       os.Getenv("CONSENTRY_REDIS_ADDR"),
		KafkaTopic:      envOr("CONSENTRY_KAFKA_TOPIC", "consentry.audit"),
		JWTSigningKey:   os.Getenv("CONSENTRY_JWT_SIGNING_KEY"),
		OpenProcessors:  os.Getenv("CONSENTRY_OPEN_PROCESSORS") == "true",
		AuditBuffer:     1024,
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := os.Getenv("CONSENTRY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.JWTSigningKey == "" {
		// Development default; override in any real deployment.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
