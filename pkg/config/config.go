// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// EnvPrefix prefixes every variable
const EnvPrefix = "FITGEN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	AuthModeFirebase = "firebase"
	AuthModeHMAC     = "hmac"
	AuthModeJWKS     = "jwks"

	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

type Config struct {
	App      AppConfig
	Auth     AuthConfig
	Quota    QuotaConfig
	Gemini   GeminiConfig
	Catalog  CatalogConfig
	Stripe   StripeConfig
	GCP      GCPConfig
	Redis    RedisConfig
	Postgres PostgresConfig
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.Mode {
	case AuthModeFirebase:
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("FITGEN_GCP_PROJECT_ID is required for firebase auth"))
		}
	case AuthModeHMAC:
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("FITGEN_AUTH_HMAC_SECRET is required for hmac auth"))
		}
	case AuthModeJWKS:
		if c.Auth.JWKSURL == "" {
			errs = append(errs, errors.New("FITGEN_AUTH_JWKS_URL is required for jwks auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Auth.Mode))
	}

	switch c.Quota.Backend {
	case BackendFirestore:
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("FITGEN_GCP_PROJECT_ID is required for the firestore backend"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("FITGEN_REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("FITGEN_POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendMemory:
		if c.App.IsProd() {
			errs = append(errs, errors.New("the memory backend cannot be used in prod"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown quota backend %q", c.Quota.Backend))
	}

	if c.Quota.Period <= 0 {
		errs = append(errs, errors.New("FITGEN_QUOTA_PERIOD must be positive"))
	}
	if _, err := c.Quota.PlanLimits(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

type AppConfig struct {
	Env            string   `envconfig:"FITGEN_APP_ENV" default:"dev"`
	Port           string   `envconfig:"FITGEN_APP_PORT" default:"8080"`
	LogLevel       string   `envconfig:"FITGEN_LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"FITGEN_LOG_FORMAT" default:"json"`
	AllowedOrigins []string `envconfig:"FITGEN_ALLOWED_ORIGINS"`

	// AppID namespaces Firestore documents: {root}/{appId}/...
	AppID string `envconfig:"FITGEN_APP_ID" default:"default"`

	ShutdownTimeout time.Duration `envconfig:"FITGEN_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type AuthConfig struct {
	Mode       string `envconfig:"FITGEN_AUTH_MODE" default:"firebase"`
	HMACSecret string `envconfig:"FITGEN_AUTH_HMAC_SECRET"`
	JWKSURL    string `envconfig:"FITGEN_AUTH_JWKS_URL"`
	Issuer     string `envconfig:"FITGEN_AUTH_ISSUER"`
	Audience   string `envconfig:"FITGEN_AUTH_AUDIENCE"`
}

type QuotaConfig struct {
	Backend string        `envconfig:"FITGEN_QUOTA_BACKEND" default:"firestore"`
	Period  time.Duration `envconfig:"FITGEN_QUOTA_PERIOD" default:"720h"`

	// FreeLimits and ProLimits are category:units lists, e.g. "routine:3,coach:10".
	// Categories left out keep their stock limit.
	FreeLimits map[string]int `envconfig:"FITGEN_QUOTA_FREE_LIMITS"`
	ProLimits  map[string]int `envconfig:"FITGEN_QUOTA_PRO_LIMITS"`

	ReleaseTimeout time.Duration `envconfig:"FITGEN_QUOTA_RELEASE_TIMEOUT" default:"5s"`

	// BreakerThreshold consecutive storage failures fail requests fast for BreakerReset.
	// Zero disables the breaker.
	BreakerThreshold int           `envconfig:"FITGEN_QUOTA_BREAKER_THRESHOLD" default:"5"`
	BreakerReset     time.Duration `envconfig:"FITGEN_QUOTA_BREAKER_RESET" default:"30s"`
}

// PlanLimits overlays the configured limits on quota.DefaultLimits
func (q QuotaConfig) PlanLimits() (map[quota.Plan]map[quota.Category]int, error) {
	limits := quota.DefaultLimits()
	overrides := map[quota.Plan]map[string]int{
		quota.PlanFree: q.FreeLimits,
		quota.PlanPro:  q.ProLimits,
	}
	for plan, values := range overrides {
		for raw, n := range values {
			cat := quota.Category(strings.ToLower(strings.TrimSpace(raw)))
			if !cat.Valid() {
				return nil, fmt.Errorf("%w: %q in %s limits", quota.ErrInvalidCategory, raw, plan)
			}
			if n < 0 {
				return nil, fmt.Errorf("negative limit for %s/%s", plan, cat)
			}
			limits[plan][cat] = n
		}
	}
	return limits, nil
}

type GeminiConfig struct {
	APIKey      string        `envconfig:"FITGEN_GEMINI_API_KEY"`
	BaseURL     string        `envconfig:"FITGEN_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	Timeout     time.Duration `envconfig:"FITGEN_GEMINI_TIMEOUT" default:"60s"`
	Temperature float64       `envconfig:"FITGEN_GEMINI_TEMPERATURE" default:"0.7"`
	WebSearch   bool          `envconfig:"FITGEN_GEMINI_WEB_SEARCH" default:"false"`

	PrimaryModel   string `envconfig:"FITGEN_GEMINI_MODEL" default:"gemini-2.5-flash"`
	FastModel      string `envconfig:"FITGEN_GEMINI_FAST_MODEL" default:"gemini-2.5-flash-lite"`
	VisionModel    string `envconfig:"FITGEN_GEMINI_VISION_MODEL" default:"gemini-2.5-flash"`
	VisionProModel string `envconfig:"FITGEN_GEMINI_VISION_PRO_MODEL" default:"gemini-2.5-pro"`
}

type CatalogConfig struct {
	Enabled         bool          `envconfig:"FITGEN_CATALOG_ENABLED" default:"true"`
	RefreshInterval time.Duration `envconfig:"FITGEN_CATALOG_REFRESH_INTERVAL" default:"1h"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"FITGEN_STRIPE_SECRET_KEY"`
	WebhookSecret string `envconfig:"FITGEN_STRIPE_WEBHOOK_SECRET"`
	PriceID       string `envconfig:"FITGEN_STRIPE_PRICE_ID"`
	SuccessURL    string `envconfig:"FITGEN_STRIPE_SUCCESS_URL"`
	CancelURL     string `envconfig:"FITGEN_STRIPE_CANCEL_URL"`
	ReturnURL     string `envconfig:"FITGEN_STRIPE_RETURN_URL"`
}

// Enabled reports whether billing is configured
func (s StripeConfig) Enabled() bool {
	return s.SecretKey != ""
}

type GCPConfig struct {
	ProjectID        string `envconfig:"FITGEN_GCP_PROJECT_ID"`
	FirestoreRoot    string `envconfig:"FITGEN_FIRESTORE_ROOT" default:"apps"`
	PlanChangedTopic string `envconfig:"FITGEN_PUBSUB_PLAN_CHANGED_TOPIC"`
}

type RedisConfig struct {
	URL       string `envconfig:"FITGEN_REDIS_URL"`
	KeyPrefix string `envconfig:"FITGEN_REDIS_KEY_PREFIX" default:"fitgen:"`
}

type PostgresConfig struct {
	DSN         string `envconfig:"FITGEN_POSTGRES_DSN"`
	MaxConns    int32  `envconfig:"FITGEN_POSTGRES_MAX_CONNS" default:"10"`
	AutoMigrate bool   `envconfig:"FITGEN_POSTGRES_AUTO_MIGRATE" default:"true"`
}
