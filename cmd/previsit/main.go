package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/previsit/cmd/mainconfig"
	"github.com/wolfman30/previsit/internal/api/router"
	"github.com/wolfman30/previsit/internal/app/bootstrap"
	appconfig "github.com/wolfman30/previsit/internal/config"
	"github.com/wolfman30/previsit/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/previsit/internal/http/middleware"
	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/prepnote"
	"github.com/wolfman30/previsit/internal/workflow"
	"github.com/wolfman30/previsit/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting previsit server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
	)

	app, err := setupApp(context.Background(), cfg, logger, mainconfig.LoadAWSConfig)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /session/events holds its connection open.
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler  http.Handler
	workflow *workflow.Controller
	panel    *prepnote.Panel
	hub      *handlers.StreamHub
	redis    *redis.Client
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// setupMetrics registers the service metrics plus Go runtime collectors on a
// private registry.
func setupMetrics() (http.Handler, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.New(reg)
}

// setupApp wires the operator session: backend client, workflow controller,
// note panel, clipboard sink, event stream and router.
func setupApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, loadAWS bootstrap.AWSConfigLoader) (*app, error) {
	metricsHandler, m := setupMetrics()

	client, err := bootstrap.BuildSchedulingClient(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.ClipboardBackend == bootstrap.ClipboardRedis {
		redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	}
	cb, err := bootstrap.BuildClipboard(ctx, cfg, redisClient, loadAWS, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	sessionID := uuid.NewString()
	logger = logger.With("session_id", sessionID)

	panel := prepnote.NewPanel(cb, sessionID, logger, m)
	wf := workflow.New(client, panel, workflow.WithLogger(logger), workflow.WithMetrics(m))
	hub := handlers.NewStreamHub(func() (workflow.Snapshot, prepnote.View) {
		return wf.Snapshot(), panel.View()
	}, logger)
	wf.OnChange(hub.PublishSession)
	panel.OnChange(hub.PublishNote)

	var limiter *httpmiddleware.RateLimiter
	if cfg.SessionRateLimit > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.SessionRateLimit, cfg.SessionRateBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Session:            handlers.NewSessionHandler(wf, client, logger),
		Note:               handlers.NewNoteHandler(panel),
		Stream:             hub,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	return &app{handler: handler, workflow: wf, panel: panel, hub: hub, redis: redisClient}, nil
}
