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
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/config"
	"github.com/fitbot/fitbot-backend/internal/domain"
	"github.com/fitbot/fitbot-backend/internal/http/handlers"
	"github.com/fitbot/fitbot-backend/internal/http/middleware"
	"github.com/fitbot/fitbot-backend/internal/provider"
	"github.com/fitbot/fitbot-backend/internal/ratelimit"
	"github.com/fitbot/fitbot-backend/internal/repo"
	"github.com/fitbot/fitbot-backend/internal/search"
	"github.com/fitbot/fitbot-backend/internal/services"
)

// storeShim adapts the repository free functions to the store interfaces
// expected by the service layer. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type storeShim struct{}

// GetUser proxies repo.GetUser.
func (storeShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// GetFitnessProfile proxies repo.GetFitnessProfile.
func (storeShim) GetFitnessProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.FitnessProfile, error) {
	return repo.GetFitnessProfile(ctx, db, userID)
}

// UpsertFitnessProfile proxies repo.UpsertFitnessProfile.
func (storeShim) UpsertFitnessProfile(ctx context.Context, db *gorm.DB, p *domain.FitnessProfile) error {
	return repo.UpsertFitnessProfile(ctx, db, p)
}

// IncrementMessageCount proxies repo.IncrementMessageCount.
func (storeShim) IncrementMessageCount(ctx context.Context, db *gorm.DB, userID string) error {
	return repo.IncrementMessageCount(ctx, db, userID)
}

// CreateConversation proxies repo.CreateConversation.
func (storeShim) CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, title)
}

// ListConversations proxies repo.ListConversations.
func (storeShim) ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID, limit)
}

// CountConversations proxies repo.CountConversations.
func (storeShim) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}

// ListConversationsPage proxies repo.ListConversationsPage.
func (storeShim) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}

// GetConversation proxies repo.GetConversation.
func (storeShim) GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id, userID)
}

// UpdateConversationTitle proxies repo.UpdateConversationTitle.
func (storeShim) UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	return repo.UpdateConversationTitle(ctx, db, id, userID, title)
}

// UpdateConversationStatus proxies repo.UpdateConversationStatus.
func (storeShim) UpdateConversationStatus(ctx context.Context, db *gorm.DB, id, userID, status string) error {
	return repo.UpdateConversationStatus(ctx, db, id, userID, status)
}

// TouchConversation proxies repo.TouchConversation.
func (storeShim) TouchConversation(ctx context.Context, db *gorm.DB, id string) error {
	return repo.TouchConversation(ctx, db, id)
}

// DeleteConversation proxies repo.DeleteConversation.
func (storeShim) DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteConversation(ctx, db, id, userID)
}

// CreateMessage proxies repo.CreateMessage with a context-scoped handle.
func (storeShim) CreateMessage(ctx context.Context, db *gorm.DB, conversationID, role, content string) (*domain.Message, error) {
	return repo.CreateMessage(db.WithContext(ctx), conversationID, role, content)
}

// ListMessages proxies repo.ListMessages with a context-scoped handle.
func (storeShim) ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	return repo.ListMessages(db.WithContext(ctx), conversationID, limit)
}

// CountMessages proxies repo.CountMessages with a context-scoped handle.
func (storeShim) CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	return repo.CountMessages(db.WithContext(ctx), conversationID)
}

// ListMessagesPage proxies repo.ListMessagesPage with a context-scoped handle.
func (storeShim) ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(db.WithContext(ctx), conversationID, offset, limit)
}

// ListRecentMessages proxies repo.ListRecentMessages with a context-scoped handle.
func (storeShim) ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	return repo.ListRecentMessages(db.WithContext(ctx), conversationID, limit)
}

// FindProductByName proxies repo.FindProductByName.
func (storeShim) FindProductByName(ctx context.Context, db *gorm.DB, name string, minRating float64) (*domain.Product, error) {
	return repo.FindProductByName(ctx, db, name, minRating)
}

// CreateRecommendation proxies repo.CreateRecommendation.
func (storeShim) CreateRecommendation(ctx context.Context, db *gorm.DB, userID string, products []string, reason string) (*domain.Recommendation, error) {
	return repo.CreateRecommendation(ctx, db, userID, products, reason)
}

// ListRecommendations proxies repo.ListRecommendations.
func (storeShim) ListRecommendations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Recommendation, error) {
	return repo.ListRecommendations(ctx, db, userID, limit)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// rdb is the shared Redis client for the hourly quota counters; pass nil to
// fall back to the in-process limiter backend (single-instance deployments).
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Edge rate limiter (per user/IP token bucket)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Response compression. The SSE chat route is excluded: compressed
	// streams buffer in proxies and defeat incremental rendering.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{cfg.APIBasePath + "/chat"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP (edge abuse control; the
	// per-operation hourly quotas are enforced inside the services)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "X-Conversation-ID", "Content-Length"},
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "X-Conversation-ID", "Content-Length"},
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

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/provider/limiter
	limits := ratelimit.Limits{
		Chat:      cfg.Limits.ChatPerHour,
		Search:    cfg.Limits.SearchPerHour,
		Recommend: cfg.Limits.RecommendPerHour,
	}
	var limiter ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, limits)
	} else {
		limiter = ratelimit.NewMemoryLimiter(limits)
	}

	gateway := provider.New(cfg.Provider, log.Logger)

	chatSvc := services.NewChatService(db, storeShim{}, gateway, limiter, cfg.Limits, cfg.Provider.RequestTimeout, log.Logger)

	convSvc := services.NewConversationService(db, storeShim{})
	convSvc.TitleMaxLen = cfg.Limits.RenameClampRunes
	convSvc.PageLimit = cfg.Limits.ConversationsPage

	profSvc := services.NewProfileService(db, storeShim{})

	chain := search.Chain{}
	if cfg.Search.TavilyAPIKey != "" {
		chain = append(chain, &search.Tavily{APIKey: cfg.Search.TavilyAPIKey})
	}
	if cfg.Search.SerperAPIKey != "" {
		chain = append(chain, &search.Serper{APIKey: cfg.Search.SerperAPIKey})
	}
	chain = append(chain, search.GoogleLink{})
	searchSvc := services.NewSearchService(chain, limiter, log.Logger)

	recSvc := services.NewRecommendationService(db, storeShim{}, gateway, limiter, log.Logger)

	h := handlers.New(convSvc, chatSvc, profSvc, searchSvc, recSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Chat (SSE)
		api.POST("/chat", h.Chat)

		// Conversations
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.GET("/conversations/:id/messages", h.ListConversationMessages)
		api.PUT("/conversations/:id/title", h.RenameConversation)
		api.PUT("/conversations/:id/archive", h.ArchiveConversation)
		api.PUT("/conversations/:id/restore", h.RestoreConversation)
		api.DELETE("/conversations/:id", h.DeleteConversation)

		// Profile
		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.UpdateProfile)

		// Search
		api.POST("/search", h.Search)

		// Recommendations
		api.POST("/recommendations", h.Recommend)
		api.GET("/recommendations/history", h.RecommendationHistory)
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

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
