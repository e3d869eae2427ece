package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config captures everything the broker needs at startup. It is built once
// in main and threaded explicitly through constructors; nothing reads the
// environment after this.
type Config struct {
	Addr string

	// ExternalBaseURL is this broker's public origin, used to build the
	// upstream redirect URI (e.g. https://broker.example).
	ExternalBaseURL string

	// CookieSecret is the master secret; per-cookie keys are derived from
	// it, so rotating it invalidates every outstanding cookie at once.
	CookieSecret string

	Upstream UpstreamConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	Server ServerInfoConfig

	PendingTTL         time.Duration
	CSRFTTL            time.Duration
	ApprovedClientsTTL time.Duration
}

// UpstreamConfig points at the identity provider.
type UpstreamConfig struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
}

// RedisConfig configures the shared pending-state store. An empty URL
// selects the in-memory store (single instance only).
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event sink. Empty brokers select the
// in-memory publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ServerInfoConfig is the branding shown on the consent dialog.
type ServerInfoConfig struct {
	Name        string
	LogoURL     string
	Description string
}

// FromEnv builds the Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:            envOr("AUTHGATE_ADDR", ":8080"),
		ExternalBaseURL: strings.TrimSuffix(os.Getenv("AUTHGATE_EXTERNAL_URL"), "/"),
		CookieSecret:    os.Getenv("AUTHGATE_COOKIE_SECRET"),
		Upstream: UpstreamConfig{
			ClientID:     os.Getenv("UPSTREAM_CLIENT_ID"),
			ClientSecret: os.Getenv("UPSTREAM_CLIENT_SECRET"),
			AuthorizeURL: os.Getenv("UPSTREAM_AUTHORIZE_URL"),
			TokenURL:     os.Getenv("UPSTREAM_TOKEN_URL"),
			APIBaseURL:   strings.TrimSuffix(os.Getenv("UPSTREAM_API_BASE_URL"), "/"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("AUTHGATE_REDIS_URL"),
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("AUTHGATE_KAFKA_BROKERS")),
			Topic:   envOr("AUTHGATE_AUDIT_TOPIC", "authgate.audit"),
		},
		Server: ServerInfoConfig{
			Name:        envOr("AUTHGATE_SERVER_NAME", "Authgate"),
			LogoURL:     os.Getenv("AUTHGATE_SERVER_LOGO_URL"),
			Description: os.Getenv("AUTHGATE_SERVER_DESCRIPTION"),
		},
		PendingTTL:         600 * time.Second,
		CSRFTTL:            600 * time.Second,
		ApprovedClientsTTL: 365 * 24 * time.Hour,
	}

	if cfg.CookieSecret == "" {
		return Config{}, fmt.Errorf("AUTHGATE_COOKIE_SECRET is required")
	}
	if cfg.ExternalBaseURL == "" {
		return Config{}, fmt.Errorf("AUTHGATE_EXTERNAL_URL is required")
	}
	if cfg.Upstream.ClientID == "" || cfg.Upstream.ClientSecret == "" {
		return Config{}, fmt.Errorf("UPSTREAM_CLIENT_ID and UPSTREAM_CLIENT_SECRET are required")
	}
	if cfg.Upstream.AuthorizeURL == "" || cfg.Upstream.TokenURL == "" || cfg.Upstream.APIBaseURL == "" {
		return Config{}, fmt.Errorf("UPSTREAM_AUTHORIZE_URL, UPSTREAM_TOKEN_URL and UPSTREAM_API_BASE_URL are required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
