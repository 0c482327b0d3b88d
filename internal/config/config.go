package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseDSN string

	// Empty means events are not published (local development without a broker).
	RabbitURL string

	// Stripe
	StripeAPIBase       string
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration

	// Base URL of the storefront, used for checkout success/cancel redirects.
	SiteURL string
}

func Load() Config {
	return Config{
		Port:        getenv("PORT", "8080"),
		DatabaseDSN: os.Getenv("STORE_DB_DSN"),

		RabbitURL: os.Getenv("RABBITMQ_URL"),

		StripeAPIBase:       getenv("STRIPE_API_BASE", "https://api.stripe.com"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		GatewayTimeout:      parseDuration(getenv("GATEWAY_TIMEOUT", "10s"), 10*time.Second),

		SiteURL: getenv("SITE_URL", "http://localhost:3000"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
