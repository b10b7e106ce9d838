// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and tiered rate limiting.
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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/auth"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/config"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/email"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http/handlers"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http/middleware"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/services"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ws"
)

// Deps carries the long-lived dependencies the router wires into services and
// handlers. All of them are constructed (and later closed) by cmd/server.
type Deps struct {
	DB     *gorm.DB
	Cfg    config.Config
	AI     *ai.Router
	Hub    *ws.Hub
	Mailer *email.Sender
	Redis  *redis.Client // nil disables the shared rate-limit store
	Tokens *auth.Tokens
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// The idempotency validator needs the authenticated identity for its lookup,
// so it mounts on the authed group after RequireAuth and before the rate
// limiters (replays bypass them).
//
// Rate limiting is applied per route group from the named tiers instead of a
// single global bucket, so auth endpoints, chat generation, uploads, and
// destructive operations each get their own ceiling.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	cfg := deps.Cfg
	db := deps.DB

	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction of credentials
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Authorization", "X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (4 MiB covers avatar uploads)
	r.Use(limitBody(4 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	registerCORS(r, cfg)

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

	// Dependency injection: services ← repo/db/providers
	authLog := log.With().Str("component", "auth").Logger()
	authSvc := services.NewAuthService(db, deps.Tokens, deps.Mailer, authLog,
		cfg.JWT.RefreshTTL, cfg.PublicBaseURL, cfg.DefaultLanguage)
	chatSvc := services.NewChatService(db, cfg.DefaultModel, cfg.DefaultLanguage)
	msgSvc := services.NewMessageService(db, deps.AI, cfg.Providers.HistoryLimit)
	sumSvc := services.NewSummaryService(db, deps.AI, cfg.DefaultModel)

	h := handlers.New(authSvc, chatSvc, msgSvc, sumSvc, db)
	h.Hub = deps.Hub
	h.UploadDir = cfg.UploadDir
	if deps.AI != nil {
		h.Models = deps.AI.Models()
	}
	if cfg.OAuth.GoogleClientID != "" {
		h.GoogleOAuth = &oauth2.Config{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	limiters := middleware.NewLimiters(cfg.Rate, deps.Redis)
	requireAuth := middleware.RequireAuth(deps.Tokens)

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Account lifecycle (anonymous, IP-keyed limiter)
	authGroup := api.Group("/auth", limiters.Auth...)
	{
		authGroup.POST("/register", h.Register)
		authGroup.GET("/verify-email", h.VerifyEmail)
		authGroup.POST("/resend-verification", h.ResendVerification)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/forgot-password", h.ForgotPassword)
		authGroup.POST("/reset-password", h.ResetPassword)
		authGroup.GET("/google", h.GoogleRedirect)
		authGroup.GET("/google/callback", h.GoogleCallback)
	}

	// Everything below requires a bearer token. The idempotency validator
	// runs after RequireAuth so its lookup sees the real user id, and before
	// the rate limiters so a replayed request does not burn a token.
	authed := api.Group("", requireAuth)
	authed.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, chatID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, chatID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))
	authed.Use(limiters.API...)

	// Model catalogue
	authed.GET("/models", h.ListModels)

	// Chats
	chat := authed.Group("/chat")
	{
		chat.POST("", h.CreateChat)
		chat.GET("", h.ListChats)
		chat.GET("/search", h.SearchChats)
		chat.GET("/:id", h.GetChat)
		chat.PATCH("/:id", h.UpdateChat)
		chat.POST("/:id/archive", h.ArchiveChat)
		chat.DELETE("/:id", h.DeleteChat)
		chat.GET("/:id/export", gzip.Gzip(gzip.DefaultCompression), h.ExportChat)

		// Message history (read path stays on the API tier)
		chat.GET("/:id/messages", h.ListMessages)
		chat.POST("/:id/messages/:mid/feedback", h.PostFeedback)

		// Generation paths carry their own, tighter tier.
		gen := chat.Group("", limiters.Chat...)
		gen.POST("/:id/messages", h.PostMessage)
		gen.PUT("/:id/messages/:mid", h.EditMessage)
		gen.POST("/:id/messages/:mid/regenerate", h.RegenerateMessage)
	}

	// User account
	user := authed.Group("/user")
	{
		user.GET("/profile", h.GetProfile)
		user.PATCH("/profile", h.UpdateProfile)
		user.POST("/avatar", append(limiters.Upload, h.UploadAvatar)...)
		user.GET("/summary", h.GetSummary)
		user.POST("/summary", append(limiters.Summary, h.GenerateSummary)...)
		user.GET("/statistics", h.GetStatistics)
		user.GET("/export", gzip.Gzip(gzip.DefaultCompression), h.ExportUserData)
	}
	authed.DELETE("/user", append(limiters.Strict, h.DeleteAccount)...)

	// Real-time push
	if deps.Hub != nil {
		authed.GET("/ws", func(c *gin.Context) {
			if err := ws.Serve(deps.Hub, c.Writer, c.Request, middleware.UserID(c)); err != nil {
				handlers.Fail(c, http.StatusBadRequest, handlers.ErrCodeBadRequest, "websocket upgrade failed")
			}
		})
	}
}

// registerCORS installs the CORS middleware pair used across environments.
func registerCORS(r *gin.Engine, cfg config.Config) {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

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
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap fail on body read.
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
