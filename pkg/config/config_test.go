package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FITGEN_AUTH_MODE", "hmac")
	t.Setenv("FITGEN_AUTH_HMAC_SECRET", "secret")
	t.Setenv("FITGEN_QUOTA_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.App.IsDev())
	assert.Equal(t, 720*time.Hour, cfg.Quota.Period)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.PrimaryModel)
	assert.Equal(t, time.Hour, cfg.Catalog.RefreshInterval)
	assert.Equal(t, "fitgen:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Stripe.Enabled())
}

func TestLoad_ListsAndLimits(t *testing.T) {
	t.Setenv("FITGEN_AUTH_MODE", "hmac")
	t.Setenv("FITGEN_AUTH_HMAC_SECRET", "secret")
	t.Setenv("FITGEN_QUOTA_BACKEND", "memory")
	t.Setenv("FITGEN_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("FITGEN_QUOTA_FREE_LIMITS", "routine:5,coach:1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.App.AllowedOrigins)

	limits, err := cfg.Quota.PlanLimits()
	require.NoError(t, err)
	assert.Equal(t, 5, limits[quota.PlanFree][quota.CategoryRoutine])
	assert.Equal(t, 1, limits[quota.PlanFree][quota.CategoryCoach])
	assert.Equal(t, quota.DefaultLimits()[quota.PlanFree][quota.CategoryNutrition], limits[quota.PlanFree][quota.CategoryNutrition])
	assert.Equal(t, quota.DefaultLimits()[quota.PlanPro], limits[quota.PlanPro])
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:   AppConfig{Env: AppEnvDev},
			Auth:  AuthConfig{Mode: AuthModeHMAC, HMACSecret: "s"},
			Quota: QuotaConfig{Backend: BackendMemory, Period: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"hmac without secret", func(c *Config) { c.Auth.HMACSecret = "" }, "HMAC_SECRET"},
		{"jwks without url", func(c *Config) { c.Auth.Mode = AuthModeJWKS }, "JWKS_URL"},
		{"firebase without project", func(c *Config) { c.Auth.Mode = AuthModeFirebase }, "PROJECT_ID"},
		{"unknown auth", func(c *Config) { c.Auth.Mode = "magic" }, "unknown auth mode"},
		{"redis without url", func(c *Config) { c.Quota.Backend = BackendRedis }, "REDIS_URL"},
		{"postgres without dsn", func(c *Config) { c.Quota.Backend = BackendPostgres }, "POSTGRES_DSN"},
		{"memory in prod", func(c *Config) { c.App.Env = AppEnvProd }, "memory backend"},
		{"bad period", func(c *Config) { c.Quota.Period = 0 }, "PERIOD"},
		{"bad category", func(c *Config) { c.Quota.ProLimits = map[string]int{"yoga": 3} }, "yoga"},
		{"negative limit", func(c *Config) { c.Quota.FreeLimits = map[string]int{"coach": -1} }, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
