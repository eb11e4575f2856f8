// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
//
// The surface is deliberately small: one provider-facing webhook endpoint and
// a read-only admin API. The outreach pipeline itself (import, queue build,
// touch creation, send) runs through the CLI, not HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/cache"
	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/http/handlers"
	"github.com/dentalops/recallbridge/internal/http/middleware"
	"github.com/dentalops/recallbridge/internal/repo"
	"github.com/dentalops/recallbridge/internal/services"
)

// adminReadsShim adapts the repository free functions to the
// handlers.AdminReads interface. This keeps handlers decoupled from the
// concrete repo package while reusing existing functions.
type adminReadsShim struct{ db *gorm.DB }

// CountTouches proxies repo.CountTouches.
func (s adminReadsShim) CountTouches(ctx context.Context, practiceID string, state domain.SendState) (int64, error) {
	return repo.CountTouches(ctx, s.db, practiceID, state)
}

// ListTouchesPage proxies repo.ListTouchesPage.
func (s adminReadsShim) ListTouchesPage(ctx context.Context, practiceID string, state domain.SendState, offset, limit int) ([]domain.Touch, error) {
	return repo.ListTouchesPage(ctx, s.db, practiceID, state, offset, limit)
}

// GetPatient proxies repo.GetPatient.
func (s adminReadsShim) GetPatient(ctx context.Context, patientKey string) (*domain.Patient, error) {
	return repo.GetPatient(ctx, s.db, patientKey)
}

// ListRecentEvents proxies repo.ListRecentEvents.
func (s adminReadsShim) ListRecentEvents(ctx context.Context, practiceID string, limit int) ([]domain.EventLogEntry, error) {
	return repo.ListRecentEvents(ctx, s.db, practiceID, limit)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the webhook endpoint and the versioned admin API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PHI scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, dedupe cache.TTLCache, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Inbound SMS bodies and phone
	// numbers are PHI-adjacent; they must never land in access logs.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Webhook-Token",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); provider callbacks are tiny
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/cache
	whSvc := services.NewWebhookService(db, dedupe, cfg.Practice.PracticeID, cfg.DedupeTTL)
	statsSvc := services.NewStatsService(db, cfg.Practice, cfg.Invariants)
	h := handlers.New(whSvc, statsSvc, adminReadsShim{db: db},
		cfg.Practice.PracticeID, cfg.WebhookToken, cfg.Practice.ActiveCampaignID)

	// Provider callbacks (plain-text contract, token-gated by query param)
	r.POST("/webhook", h.Webhook)

	// Read-only admin API
	api := r.Group("/api/v1")
	{
		api.GET("/touches", h.ListTouches)
		api.GET("/patients/:key", h.GetPatient)
		api.GET("/stats", h.GetStats)
		api.GET("/events", h.ListEvents)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
