package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	gatehttp "github.com/mihaimyh/fitgen/middleware/http"
	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// RouterConfig wires the handlers onto a router
type RouterConfig struct {
	Handler *Handler

	// Gate guards every /v1 route (required)
	Gate func(http.Handler) http.Handler

	// Webhook serves POST /webhooks/stripe. Optional.
	Webhook http.Handler

	// Metrics serves GET /metrics. Optional.
	Metrics http.Handler

	Logger quota.Logger
}

// NewRouter builds the service router
func NewRouter(config RouterConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = &quota.NoopLogger{}
	}
	methodNotAllowed := gatehttp.MethodNotAllowed(logger)
	notFound := func(w http.ResponseWriter, r *http.Request) {
		apperr.WriteError(w, nil, apperr.New(apperr.CodeNotFound, "no route for "+r.URL.Path))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(notFound)

	r.Get("/healthz", config.Handler.Health)
	if config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", config.Metrics)
	}
	if config.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/stripe", config.Webhook)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(config.Gate)
		r.MethodNotAllowed(methodNotAllowed)
		r.NotFound(notFound)

		r.Post("/generate", config.Handler.Generate)
		r.Get("/usage", config.Handler.GetUsage)
		r.Post("/billing/checkout", config.Handler.Checkout)
		r.Post("/billing/portal", config.Handler.Portal)
		r.Post("/billing/sync", config.Handler.Sync)
	})

	return r
}

// AccessLog logs one line per request with its status and duration
func AccessLog(logger quota.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				quota.F("request_id", middleware.GetReqID(r.Context())),
				quota.F("method", r.Method),
				quota.F("path", r.URL.Path),
				quota.F("status", status),
				quota.F("bytes", ww.BytesWritten()),
				quota.F("duration_ms", time.Since(start).Milliseconds()))
		})
	}
}
