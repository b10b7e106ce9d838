// Command server runs the chat backend HTTP API.
//
// Startup order:
//  1. Load .env (best effort) and the typed configuration
//  2. Configure zerolog (level, optional pretty console)
//  3. Open SQLite and run migrations
//  4. Construct AI providers and the fallback router
//  5. Start the WebSocket hub and the chat counter reconciler
//  6. Serve HTTP with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/auth"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/config"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/email"
	httpapi "github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/observability"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/sysutil"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ws"
)

const version = "1.0.0"

// reconcileEvery is how often stored chat counters are recomputed from the
// messages table. Counter drift can only appear after a crashed transaction,
// so a slow cadence is enough.
const reconcileEvery = 15 * time.Minute

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting chat backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// AI providers, in fallback order. Gemini doubles as the translator for
	// providers without native Arabic output.
	caps := make([]ai.Capability, 0, 3)
	var translator ai.Translator
	if cfg.Providers.GeminiAPIKey != "" {
		gem, err := ai.NewGemini(ctx, cfg.Providers.GeminiAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("gemini client init failed")
		}
		caps = append(caps, ai.Capability{
			Provider:     gem,
			Models:       []string{"gemini-1.5-flash", "gemini-1.5-pro"},
			NativeArabic: true,
			Priority:     0,
		})
		translator = gem
	}
	if cfg.Providers.DeepSeekAPIKey != "" {
		ds := ai.NewDeepSeek(cfg.Providers.DeepSeekAPIKey, cfg.Providers.DeepSeekBaseURL, cfg.Providers.RequestTimeout)
		caps = append(caps, ai.Capability{
			Provider: ds,
			Models:   []string{"deepseek-chat", "deepseek-reasoner"},
			Priority: 1,
		})
	}
	if cfg.Providers.HFAPIKey != "" {
		hf := ai.NewHuggingFace(cfg.Providers.HFAPIKey, cfg.Providers.HFBaseURL, cfg.Providers.RequestTimeout)
		caps = append(caps, ai.Capability{
			Provider: hf,
			Models:   []string{"*"},
			Priority: 2,
		})
	}
	if len(caps) == 0 {
		log.Warn().Msg("no AI provider keys configured, generation will fail")
	}
	aiRouter := ai.NewRouter(caps, translator, log.With().Str("component", "ai").Logger())

	// Shared rate-limit store (optional).
	var rdb *redis.Client
	if cfg.Rate.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Rate.RedisAddr, Password: cfg.Rate.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Rate.RedisAddr).Msg("redis unreachable, rate limits stay local")
		}
	}

	// WebSocket push.
	hub := ws.NewHub(log.With().Str("component", "ws").Logger())
	go hub.Run()

	mailer := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
		log.With().Str("component", "email").Logger())

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("create upload dir failed")
	}

	// Background reconciler for chat counters.
	go reconcileCounters(ctx, db)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:     db,
		Cfg:    cfg,
		AI:     aiRouter,
		Hub:    hub,
		Mailer: mailer,
		Redis:  rdb,
		Tokens: tokens,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	hub.Close()
	if err := aiRouter.Close(); err != nil {
		log.Warn().Err(err).Msg("ai providers close failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server exited")
}

// reconcileCounters periodically recomputes message/token counters from the
// messages table so they cannot drift from the source of truth.
func reconcileCounters(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(reconcileEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ids, err := repo.ListChatIDs(ctx, db)
			if err != nil {
				log.Warn().Err(err).Msg("reconcile: list chats failed")
				continue
			}
			for _, id := range ids {
				if err := repo.RecountChat(ctx, db, id); err != nil {
					log.Warn().Err(err).Str("chat_id", id).Msg("reconcile: recount failed")
				}
			}
		}
	}
}
