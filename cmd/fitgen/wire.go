package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	gatehttp "github.com/mihaimyh/fitgen/middleware/http"
	"github.com/mihaimyh/fitgen/pkg/api"
	"github.com/mihaimyh/fitgen/pkg/auth"
	fbauth "github.com/mihaimyh/fitgen/pkg/auth/firebase"
	"github.com/mihaimyh/fitgen/pkg/billing"
	billingmetrics "github.com/mihaimyh/fitgen/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/fitgen/pkg/billing/stripe"
	"github.com/mihaimyh/fitgen/pkg/catalog"
	"github.com/mihaimyh/fitgen/pkg/config"
	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/notify"
	"github.com/mihaimyh/fitgen/pkg/pipeline"
	"github.com/mihaimyh/fitgen/pkg/quota"
	quotametrics "github.com/mihaimyh/fitgen/pkg/quota/metrics/prometheus"
	firestorestore "github.com/mihaimyh/fitgen/storage/firestore"
	"github.com/mihaimyh/fitgen/storage/memory"
	"github.com/mihaimyh/fitgen/storage/postgres"
	redisstore "github.com/mihaimyh/fitgen/storage/redis"
)

const metricsNamespace = "fitgen"

// ledger is a quota backend that also keeps billing customer mappings
type ledger interface {
	quota.Storage
	billing.CustomerStore
}

type application struct {
	handler http.Handler
	closers []func() error
}

func (a *application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build wires every component from cfg. On error everything opened so far is closed.
func build(ctx context.Context, cfg *config.Config, logger quota.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := quotametrics.NewMetrics(reg, metricsNamespace)
	billingMetrics := billingmetrics.NewMetrics(reg, metricsNamespace)

	var fs *firestore.Client
	if cfg.GCP.ProjectID != "" && (cfg.Quota.Backend == config.BackendFirestore || cfg.Catalog.Enabled) {
		fs, err = firestore.NewClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		app.onClose(fs.Close)
	}

	store, err := openLedger(ctx, cfg, fs, app)
	if err != nil {
		return nil, err
	}

	limits, err := cfg.Quota.PlanLimits()
	if err != nil {
		return nil, err
	}
	var managed quota.Storage = store
	if cfg.Quota.BreakerThreshold > 0 {
		breaker := quota.NewBreaker(quota.BreakerConfig{
			FailureThreshold: cfg.Quota.BreakerThreshold,
			ResetTimeout:     cfg.Quota.BreakerReset,
			OnStateChange: func(state quota.BreakerState) {
				logger.Warn("ledger circuit breaker changed state", quota.F("state", string(state)))
			},
		})
		managed = quota.NewBreakerStorage(store, breaker)
	}
	manager, err := quota.NewManager(managed, quota.Config{
		Limits:  limits,
		Period:  cfg.Quota.Period,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("quota manager: %w", err)
	}

	verifier, claims, err := openAuth(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generator := generate.New(generate.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Models: generate.Models{
			Primary:   cfg.Gemini.PrimaryModel,
			Fast:      cfg.Gemini.FastModel,
			Vision:    cfg.Gemini.VisionModel,
			VisionPro: cfg.Gemini.VisionProModel,
		},
		Timeout:     cfg.Gemini.Timeout,
		Temperature: cfg.Gemini.Temperature,
		WebSearch:   cfg.Gemini.WebSearch,
		Logger:      logger,
	})

	var mapper *catalog.Mapper
	if cfg.Catalog.Enabled && fs != nil {
		source, err := catalog.NewFirestoreSource(fs, cfg.GCP.FirestoreRoot, cfg.App.AppID)
		if err != nil {
			return nil, fmt.Errorf("catalog source: %w", err)
		}
		cache := catalog.NewCache(source, catalog.CacheConfig{
			RefreshInterval: cfg.Catalog.RefreshInterval,
			Logger:          logger,
			Metrics:         metrics,
		})
		mapper = catalog.NewMapper(cache, generator, logger)
	}

	pipe, err := pipeline.New(pipeline.Config{
		Manager:        manager,
		Generator:      generator,
		Normalizer:     normalize.New(logger, metrics),
		Mapper:         mapper,
		ReleaseTimeout: cfg.Quota.ReleaseTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	var provider billing.Provider
	var webhook http.Handler
	if cfg.Stripe.Enabled() {
		notifier, err := openNotifier(ctx, cfg, logger, app)
		if err != nil {
			return nil, err
		}
		sp, err := stripe.NewProvider(stripe.Config{
			Config: billing.Config{
				Manager:   manager,
				Customers: store,
				Claims:    claims,
				Notifier:  notifier,
				Logger:    logger,
				Metrics:   billingMetrics,
			},
			StripeAPIKey:        cfg.Stripe.SecretKey,
			StripeWebhookSecret: cfg.Stripe.WebhookSecret,
			PriceID:             cfg.Stripe.PriceID,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		provider = sp
		webhook = sp.WebhookHandler()
	}

	handler, err := api.NewHandler(api.Config{
		Pipeline:           pipe,
		Usage:              manager,
		Billing:            provider,
		CheckoutSuccessURL: cfg.Stripe.SuccessURL,
		CheckoutCancelURL:  cfg.Stripe.CancelURL,
		PortalReturnURL:    cfg.Stripe.ReturnURL,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("api handler: %w", err)
	}

	gate, err := gatehttp.New(gatehttp.Config{
		Verifier:       verifier,
		AllowedOrigins: cfg.App.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("request gate: %w", err)
	}

	app.handler = api.NewRouter(api.RouterConfig{
		Handler: handler,
		Gate:    gate.Middleware,
		Webhook: webhook,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:  logger,
	})
	return app, nil
}

func openLedger(ctx context.Context, cfg *config.Config, fs *firestore.Client, app *application) (ledger, error) {
	switch cfg.Quota.Backend {
	case config.BackendFirestore:
		if fs == nil {
			return nil, errors.New("firestore backend needs a GCP project")
		}
		return firestorestore.New(fs, firestorestore.Config{
			RootCollection: cfg.GCP.FirestoreRoot,
			AppID:          cfg.App.AppID,
		})

	case config.BackendRedis:
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		app.onClose(client.Close)
		rcfg := redisstore.DefaultConfig()
		rcfg.KeyPrefix = cfg.Redis.KeyPrefix
		store, err := redisstore.New(client, rcfg)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return store, nil

	case config.BackendPostgres:
		pcfg := postgres.DefaultConfig()
		pcfg.ConnectionString = cfg.Postgres.DSN
		pcfg.MaxConns = cfg.Postgres.MaxConns
		pcfg.AutoMigrate = cfg.Postgres.AutoMigrate
		store, err := postgres.New(ctx, pcfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		app.onClose(func() error { store.Close(); return nil })
		return store, nil

	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
}

// openAuth returns the token verifier and, for Firebase, the claims writer
func openAuth(ctx context.Context, cfg *config.Config) (auth.Verifier, billing.ClaimsUpdater, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeFirebase:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.GCP.ProjectID})
		if err != nil {
			return nil, nil, fmt.Errorf("firebase app: %w", err)
		}
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firebase auth: %w", err)
		}
		provider, err := fbauth.New(client)
		if err != nil {
			return nil, nil, err
		}
		return provider, provider, nil

	case config.AuthModeHMAC:
		v, err := auth.NewHMACVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		return v, nil, err

	case config.AuthModeJWKS:
		v, err := auth.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		return v, nil, err
	}
	return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
}

// openNotifier publishes to Pub/Sub when a topic is configured and always logs
func openNotifier(ctx context.Context, cfg *config.Config, logger quota.Logger, app *application) (billing.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.GCP.PlanChangedTopic != "" {
		pub, err := notify.DialPubSub(ctx, cfg.GCP.ProjectID, cfg.GCP.PlanChangedTopic, notify.PubSubConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		app.onClose(pub.Close)
		notifiers = append(notifiers, pub)
	}
	return notifiers, nil
}
