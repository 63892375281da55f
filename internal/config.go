package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// DatabaseDriver selects the database/sql driver: "pgx" or "postgres" (lib/pq)
	DatabaseDriver string

	// Quota configuration
	QuotaMetrics       []string      // Allow-list of metric names
	BillingCycleLength time.Duration // Length of a billing cycle
	TrialLength        time.Duration // Trial granted to new free accounts
	CatalogSeedFile    string        // Optional TOML/YAML tier catalog imported at startup

	// Catalog cache (optional)
	RedisURL        string
	CatalogCacheTTL time.Duration

	// API authentication
	// APITokenHash is a bcrypt hash of the bearer token accepted by /v1.
	// Required outside development.
	APITokenHash string

	// Origins allowed to call the API from a browser
	CORSAllowedOrigins []string

	// Proxies (CIDRs or addresses) whose X-Forwarded-For is believed.
	// Empty means the direct peer is always the client.
	TrustedProxies []string

	// Stripe Billing Configuration
	// Webhooks are rejected when the signing secret is empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe Price IDs for subscription plans
	StripeProMonthlyPriceID        string
	StripeProYearlyPriceID         string
	StripeEnterpriseMonthlyPriceID string
	StripeEnterpriseYearlyPriceID  string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration
	CycleSweepInterval time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "pgx"),

		// Quota defaults
		QuotaMetrics:       getEnvList("QUOTA_METRICS", nil),
		BillingCycleLength: getEnvDuration("BILLING_CYCLE_LENGTH", domain.DefaultBillingCycleLength),
		TrialLength:        getEnvDuration("TRIAL_LENGTH", domain.DefaultTrialLength),
		CatalogSeedFile:    getEnv("CATALOG_SEED_FILE", ""),

		// Cache defaults (disabled without REDIS_URL)
		RedisURL:        getEnv("REDIS_URL", ""),
		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		APITokenHash:       getEnv("API_TOKEN_HASH", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES", nil),

		// Stripe billing (optional; webhooks are disabled without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		StripeProMonthlyPriceID:        getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:         getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),
		StripeEnterpriseMonthlyPriceID: getEnv("STRIPE_ENTERPRISE_MONTHLY_PRICE_ID", ""),
		StripeEnterpriseYearlyPriceID:  getEnv("STRIPE_ENTERPRISE_YEARLY_PRICE_ID", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", time.Minute),
		CycleSweepInterval: getEnvDuration("CYCLE_SWEEP_INTERVAL", 15*time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if c.DatabaseDriver != "pgx" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("DATABASE_DRIVER must be either 'pgx' or 'postgres', got: %s", c.DatabaseDriver)
	}
	if c.BillingCycleLength < time.Hour {
		return fmt.Errorf("BILLING_CYCLE_LENGTH must be at least 1h, got: %s", c.BillingCycleLength)
	}
	if c.TrialLength < 0 {
		return fmt.Errorf("TRIAL_LENGTH must not be negative")
	}
	if c.APITokenHash == "" && !c.IsDevelopment() {
		return fmt.Errorf("API_TOKEN_HASH is required when ENV is %q", c.Env)
	}
	if c.APITokenHash != "" && !strings.HasPrefix(c.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash")
	}
	if c.WorkerEnabled && c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.CycleSweepInterval < 0 {
		return fmt.Errorf("CYCLE_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MetricSet returns the configured metric allow-list, or the defaults.
func (c *Config) MetricSet() domain.MetricSet {
	if len(c.QuotaMetrics) == 0 {
		return domain.DefaultMetricSet()
	}
	return domain.NewMetricSet(c.QuotaMetrics...)
}

// StripePriceTiers maps configured Stripe price ids to the tier they grant.
func (c *Config) StripePriceTiers() map[string]domain.Tier {
	tiers := make(map[string]domain.Tier)
	for id, tier := range map[string]domain.Tier{
		c.StripeProMonthlyPriceID:        domain.TierPro,
		c.StripeProYearlyPriceID:         domain.TierPro,
		c.StripeEnterpriseMonthlyPriceID: domain.TierEnterprise,
		c.StripeEnterpriseYearlyPriceID:  domain.TierEnterprise,
	} {
		if id != "" {
			tiers[id] = tier
		}
	}
	return tiers
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations plus a whole-day form such as "30d".
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
