// Wealth widget server: hosts the lead-capture chat and forwards completed leads.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/wealth-widget/internal/api"
	"github.com/ashureev/wealth-widget/internal/config"
	"github.com/ashureev/wealth-widget/internal/conversation"
	"github.com/ashureev/wealth-widget/internal/identity"
	"github.com/ashureev/wealth-widget/internal/middleware"
	"github.com/ashureev/wealth-widget/internal/widget"
)

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"session_store", cfg.SessionStore, "sink", cfg.Sink.Primary)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	deps, err := openDependencies(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()
	slog.Info("Dependencies ready", "sink", deps.sink.Name())

	conversationLogger, err := widget.NewConversationLogger(widget.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	opts := conversation.DefaultOptions()
	if cfg.Conversation.StrictValidation {
		opts = conversation.StrictOptions()
	}
	opts.SubmitTimeout = cfg.Conversation.SubmitTimeout
	opts.DiscloseOnFailure = cfg.Conversation.DiscloseOnFailure
	opts.Logger = logger

	// Initialize services.
	svc := widget.NewService(deps.sessions, deps.sink, opts, conversationLogger)
	defer svc.Shutdown()
	conns := widget.NewConnectionManager()

	// Initialize handlers.
	widgetHandler := widget.NewHandler(svc, conns, widget.HandlerConfig{
		RateLimitRequests:  cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:    cfg.RateLimit.WindowDuration,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		AllowedOrigins:     cfg.AllowedOrigins,
		IsDevelopment:      cfg.IsDevelopment(),
	})
	defer widgetHandler.Close()
	submitHandler := api.NewSubmitHandler(deps.sink, cfg.Conversation.SubmitTimeout, cfg.MaxRequestBodySize, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(deps.healthChecks, cfg.Timeout.HealthCheck)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins, identity.SessionHeaderName))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())
	submitHandler.RegisterRoutes(r)

	// Widget routes carry anonymous visitor identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		widgetHandler.RegisterRoutes(r)
	})

	// Create server.
	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	// Start TTL worker.
	widget.StartTTLWorker(ctx, deps.sessions, svc, cfg.SessionTTL, cfg.Timeout.TTLSweep, func(key string) {
		svc.Forget(key)
		conns.CloseKey(key)
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
